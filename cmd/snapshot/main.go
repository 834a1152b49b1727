package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"coinlake/internal/cli"
	"coinlake/internal/config"
	"coinlake/internal/pipeline"
	"coinlake/internal/svc"
	providerpkg "coinlake/pkg/provider"
	"coinlake/pkg/provider/coingecko"
)

var configFile = flag.String("f", "etc/coinlake.yaml", "the config file")

func main() {
	flag.Parse()
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Println("[main] Starting derivatives snapshot...")

	cfg, err := config.Load(*configFile)
	if err != nil {
		cli.Fail("snapshot", err)
	}
	cli.LogConfigSummary(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svcCtx, err := svc.NewServiceContext(*cfg)
	if err != nil {
		cli.Fail("snapshot", err)
	}
	defer svcCtx.Close()

	source := derivativesClient(cfg)
	report, err := pipeline.NewSnapshot(svcCtx, source).Run(ctx)
	if err != nil {
		cli.Fail("snapshot", err)
	}

	if report.Skipped {
		log.Printf("[main] Snapshot already captured for %s, nothing to do", report.Day.Format("2006-01-02"))
		return
	}
	log.Printf("[main] Snapshot complete: day=%s exchanges=%d contracts=%d path=%s",
		report.Day.Format("2006-01-02"), report.Exchanges, report.Contracts, report.Path)
}

// derivativesClient builds the CoinGecko client from the provider section
// so the snapshot shares credentials and endpoints with series fetches.
func derivativesClient(cfg *config.Config) *coingecko.Client {
	var pc *providerpkg.ProviderConfig
	if cfg.Provider.Value != nil {
		pc = cfg.Provider.Value.Providers["coingecko"]
	}
	opts := []coingecko.Option{}
	if pc != nil {
		if pc.BaseURL != "" {
			opts = append(opts, coingecko.WithBaseURL(pc.BaseURL))
		}
		if key := pc.APIKey(); key != "" {
			opts = append(opts, coingecko.WithAPIKey(key))
		}
		if pc.HTTPTimeout > 0 {
			opts = append(opts, coingecko.WithHTTPClient(&http.Client{Timeout: pc.HTTPTimeout}))
		}
	}
	return coingecko.NewClient(opts...)
}
