package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"coinlake/internal/cli"
	"coinlake/internal/config"
	"coinlake/internal/pipeline"
	"coinlake/internal/svc"
	providerpkg "coinlake/pkg/provider"
	"coinlake/pkg/provider/coingecko"
)

const (
	// Both pipelines are idempotent behind the cache and snapshot guard,
	// so a short interval only costs a freshness check.
	historyInterval  = 1 * time.Hour
	snapshotInterval = 1 * time.Hour
	shutdownTimeout  = 10 * time.Second
)

var configFile = flag.String("f", "etc/coinlake.yaml", "the config file")

func main() {
	flag.Parse()
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Println("[main] Starting ingest scheduler...")

	cfg, err := config.Load(*configFile)
	if err != nil {
		cli.Fail("cron", err)
	}

	log.Printf("[main] Configuration loaded:")
	for _, line := range cli.ConfigSummaryLines(cfg) {
		log.Printf("  - %s", line)
	}

	svcCtx, err := svc.NewServiceContext(*cfg)
	if err != nil {
		cli.Fail("cron", err)
	}
	defer svcCtx.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := svcCtx.LoadOverrides(ctx); err != nil {
		cli.Fail("cron", err)
	}

	history := pipeline.NewHistory(svcCtx)
	snapshot := pipeline.NewSnapshot(svcCtx, derivativesClient(cfg))

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		runHistoryLoop(ctx, history)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		runSnapshotLoop(ctx, snapshot)
	}()

	log.Println("[main] Scheduler started. Press Ctrl+C to stop.")

	<-ctx.Done()
	log.Println("[main] Shutdown signal received, stopping tasks...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("[main] All tasks stopped cleanly")
	case <-shutdownCtx.Done():
		log.Println("[main] Shutdown timeout exceeded, forcing exit")
	}

	log.Println("[main] Scheduler stopped")
}

// runHistoryLoop runs the history ingest on a schedule.
func runHistoryLoop(ctx context.Context, history *pipeline.History) {
	ticker := time.NewTicker(historyInterval)
	defer ticker.Stop()

	// Run once immediately on startup
	runHistory(ctx, history)

	for {
		select {
		case <-ctx.Done():
			log.Println("[history] Stopping history loop")
			return
		case <-ticker.C:
			runHistory(ctx, history)
		}
	}
}

// runSnapshotLoop runs the derivatives snapshot on a schedule.
func runSnapshotLoop(ctx context.Context, snapshot *pipeline.Snapshot) {
	ticker := time.NewTicker(snapshotInterval)
	defer ticker.Stop()

	// Run once immediately on startup
	runSnapshot(ctx, snapshot)

	for {
		select {
		case <-ctx.Done():
			log.Println("[snapshot] Stopping snapshot loop")
			return
		case <-ticker.C:
			runSnapshot(ctx, snapshot)
		}
	}
}

func runHistory(ctx context.Context, history *pipeline.History) {
	if ctx.Err() != nil {
		return
	}
	report, err := history.Run(ctx)
	if err != nil {
		log.Printf("[history] Run failed reason=%s err=%v", cli.Reason(err), err)
		for _, line := range cli.ReportLines(report.Quality) {
			log.Printf("[history] %s", line)
		}
		return
	}
	log.Printf("[history] Run complete: jobs=%d in=%d out=%d dropped=%d path=%s",
		report.Jobs, report.Quality.InputRows, report.Quality.OutputRows,
		report.Quality.Dropped(), report.Path)
}

func runSnapshot(ctx context.Context, snapshot *pipeline.Snapshot) {
	if ctx.Err() != nil {
		return
	}
	report, err := snapshot.Run(ctx)
	if err != nil {
		log.Printf("[snapshot] Run failed reason=%s err=%v", cli.Reason(err), err)
		return
	}
	if report.Skipped {
		log.Printf("[snapshot] Already captured for %s", report.Day.Format("2006-01-02"))
		return
	}
	log.Printf("[snapshot] Captured: day=%s exchanges=%d contracts=%d path=%s",
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
