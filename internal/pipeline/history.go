// Package pipeline composes the stages into runnable jobs: the daily
// history ingest and the once-per-day derivatives snapshot.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/mr"

	"coinlake/internal/cache"
	"coinlake/internal/fetch"
	"coinlake/internal/quality"
	"coinlake/internal/record"
	"coinlake/internal/runlog"
	"coinlake/internal/svc"
)

// HistoryReport summarizes one history run for logs and exit status.
type HistoryReport struct {
	Jobs    int
	Fetched int
	Quality quality.Report
	Path    string
}

// History ingests every configured series, canonicalizes, gates, and
// writes one lake file per run.
type History struct {
	svc *svc.ServiceContext
}

// NewHistory builds the history pipeline.
func NewHistory(svcCtx *svc.ServiceContext) *History {
	return &History{svc: svcCtx}
}

// Run executes one full ingest. Any fetch failure aborts the run; a
// partial lake file is worse than a late one.
func (p *History) Run(ctx context.Context) (HistoryReport, error) {
	started := time.Now()
	report, err := p.run(ctx)
	runlog.RecordBestEffort(ctx, p.svc.RunLog, runlog.Entry{
		Pipeline:   "history",
		Day:        record.Day(started),
		InputRows:  report.Quality.InputRows,
		OutputRows: report.Quality.OutputRows,
		Dropped:    report.Quality.Dropped(),
		Status:     runStatus(err),
		Reason:     failureReason(err),
		OutputPath: report.Path,
		Duration:   time.Since(started),
	})
	return report, err
}

func (p *History) run(ctx context.Context) (HistoryReport, error) {
	report := HistoryReport{Jobs: len(p.svc.Config.Jobs)}
	if report.Jobs == 0 {
		return report, fmt.Errorf("history: no jobs configured")
	}

	requests := make([]fetch.Request, 0, report.Jobs)
	for _, job := range p.svc.Config.Jobs {
		kind := cache.DataKind(job.Kind)
		requests = append(requests, fetch.Request{
			Provider:  job.Provider,
			VariantID: job.Variant,
			Kind:      kind,
			Period:    job.Period,
			Validity:  p.validityFor(kind),
		})
	}

	rows, err := mr.MapReduce(func(source chan<- fetch.Request) {
		for _, req := range requests {
			source <- req
		}
	}, func(req fetch.Request, writer mr.Writer[[]record.TimeSeries], cancel func(error)) {
		fetched, err := p.svc.Coordinator.Fetch(ctx, req)
		if err != nil {
			cancel(err)
			return
		}
		logx.WithContext(ctx).Infof("history: fetched provider=%s variant=%s kind=%s rows=%d",
			req.Provider, req.VariantID, req.Kind, len(fetched))
		writer.Write(fetched)
	}, func(pipe <-chan []record.TimeSeries, writer mr.Writer[[]record.TimeSeries], cancel func(error)) {
		var all []record.TimeSeries
		for batch := range pipe {
			all = append(all, batch...)
		}
		writer.Write(all)
	}, mr.WithWorkers(p.svc.Config.Workers), mr.WithContext(ctx))
	if err != nil {
		return report, err
	}
	report.Fetched = len(rows)

	p.svc.Identity.Annotate(rows)
	merged := p.svc.Engine.Canonicalize(rows)

	gated, qreport, err := p.svc.Gate.Run(merged)
	report.Quality = qreport
	if err != nil {
		return report, err
	}

	name := fmt.Sprintf("canonical_daily_%s.parquet", record.Day(time.Now()).Format("2006-01-02"))
	path, err := p.svc.Lake.WriteSeries(name, gated)
	if err != nil {
		return report, err
	}
	report.Path = path

	logx.WithContext(ctx).Infof("history: run complete jobs=%d in=%d out=%d dropped=%d path=%s",
		report.Jobs, qreport.InputRows, qreport.OutputRows, qreport.Dropped(), path)
	return report, nil
}

// validityFor maps a data kind to its freshness rule. Daily series stay
// valid through the UTC day; everything else falls back to the TTL.
func (p *History) validityFor(kind cache.DataKind) cache.Validity {
	switch kind {
	case cache.KindMarketChart, cache.KindOHLC, cache.KindOnChain, cache.KindSocial:
		return cache.CalendarDay()
	default:
		return cache.TTL(time.Duration(p.svc.Config.Cache.FreshTTLSeconds) * time.Second)
	}
}
