package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"coinlake/internal/cli"
	"coinlake/internal/config"
	"coinlake/internal/pipeline"
	"coinlake/internal/svc"
)

var configFile = flag.String("f", "etc/coinlake.yaml", "the config file")

func main() {
	flag.Parse()
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Println("[main] Starting history ingest...")

	cfg, err := config.Load(*configFile)
	if err != nil {
		cli.Fail("history", err)
	}
	cli.LogConfigSummary(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svcCtx, err := svc.NewServiceContext(*cfg)
	if err != nil {
		cli.Fail("history", err)
	}
	defer svcCtx.Close()

	if err := svcCtx.LoadOverrides(ctx); err != nil {
		cli.Fail("history", err)
	}

	report, err := pipeline.NewHistory(svcCtx).Run(ctx)
	if err != nil {
		cli.FailWithReport("history", err, report.Quality)
	}

	log.Printf("[main] History ingest complete: jobs=%d in=%d out=%d dropped=%d path=%s",
		report.Jobs, report.Quality.InputRows, report.Quality.OutputRows,
		report.Quality.Dropped(), report.Path)
}
