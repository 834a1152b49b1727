package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/mr"

	"coinlake/internal/cache"
	"coinlake/internal/fetch"
	"coinlake/internal/lake"
	"coinlake/internal/record"
	"coinlake/internal/runlog"
	"coinlake/internal/svc"
	"coinlake/pkg/provider"
	"coinlake/pkg/provider/coingecko"
)

// DerivativesSource lists venues and their contract tickers. Satisfied by
// the CoinGecko client; tests substitute a stub.
type DerivativesSource interface {
	DerivativesExchanges(ctx context.Context) ([]coingecko.DerivativesExchange, error)
	DerivativesContracts(ctx context.Context, exchangeID string) ([]coingecko.DerivativesContract, error)
}

// SnapshotReport summarizes one snapshot run.
type SnapshotReport struct {
	Day       time.Time
	Skipped   bool
	Exchanges int
	Contracts int
	Path      string
}

// Snapshot captures the global derivatives state once per UTC day. The
// remote guard makes reruns and concurrent schedulers no-ops.
type Snapshot struct {
	svc    *svc.ServiceContext
	source DerivativesSource
	now    func() time.Time
}

// NewSnapshot builds the snapshot pipeline.
func NewSnapshot(svcCtx *svc.ServiceContext, source DerivativesSource) *Snapshot {
	return &Snapshot{svc: svcCtx, source: source, now: time.Now}
}

// Run captures today's snapshot unless one already exists remotely.
func (p *Snapshot) Run(ctx context.Context) (SnapshotReport, error) {
	started := p.now()
	report, err := p.run(ctx)
	status := runStatus(err)
	if err == nil && report.Skipped {
		status = "skipped"
	}
	runlog.RecordBestEffort(ctx, p.svc.RunLog, runlog.Entry{
		Pipeline:   "snapshot",
		Day:        report.Day,
		OutputRows: report.Contracts,
		Status:     status,
		Reason:     failureReason(err),
		OutputPath: report.Path,
		Duration:   time.Since(started),
	})
	return report, err
}

func (p *Snapshot) run(ctx context.Context) (SnapshotReport, error) {
	day := record.Day(p.now())
	report := SnapshotReport{Day: day}

	captured, err := p.svc.Guard.AlreadyCaptured(ctx, cache.KindDerivatives, day)
	if err != nil {
		return report, err
	}
	if captured {
		report.Skipped = true
		logx.WithContext(ctx).Infof("snapshot: already captured day=%s", day.Format("2006-01-02"))
		return report, nil
	}

	limiter := p.svc.Limiters["coingecko"]
	var exchanges []coingecko.DerivativesExchange
	err = p.svc.Retry.Do(ctx, func() error {
		if err := limiter.Acquire(ctx); err != nil {
			return err
		}
		var ferr error
		exchanges, ferr = p.source.DerivativesExchanges(ctx)
		return ferr
	})
	if err != nil {
		return report, classifySnapshotErr("exchanges", err)
	}
	report.Exchanges = len(exchanges)

	dayStr := day.Format("2006-01-02")
	contracts, err := mr.MapReduce(func(source chan<- coingecko.DerivativesExchange) {
		for _, ex := range exchanges {
			source <- ex
		}
	}, func(ex coingecko.DerivativesExchange, writer mr.Writer[[]lake.ContractRow], cancel func(error)) {
		var tickers []coingecko.DerivativesContract
		err := p.svc.Retry.Do(ctx, func() error {
			if err := limiter.Acquire(ctx); err != nil {
				return err
			}
			var ferr error
			tickers, ferr = p.source.DerivativesContracts(ctx, ex.ID)
			return ferr
		})
		if err != nil {
			cancel(classifySnapshotErr(ex.ID, err))
			return
		}
		writer.Write(contractRows(dayStr, ex.ID, tickers))
	}, func(pipe <-chan []lake.ContractRow, writer mr.Writer[[]lake.ContractRow], cancel func(error)) {
		var all []lake.ContractRow
		for batch := range pipe {
			all = append(all, batch...)
		}
		writer.Write(all)
	}, mr.WithWorkers(p.svc.Config.Workers), mr.WithContext(ctx))
	if err != nil {
		return report, err
	}

	sort.Slice(contracts, func(i, j int) bool {
		if contracts[i].Exchange != contracts[j].Exchange {
			return contracts[i].Exchange < contracts[j].Exchange
		}
		return contracts[i].Symbol < contracts[j].Symbol
	})
	report.Contracts = len(contracts)

	name := filepath.Join("derivatives", "daily_snapshots", dayStr+".parquet")
	path, err := p.svc.Lake.WriteContracts(name, contracts)
	if err != nil {
		return report, err
	}
	report.Path = path

	payload, err := msgpack.Marshal(contracts)
	if err != nil {
		return report, fmt.Errorf("snapshot: encode payload: %w", err)
	}
	if err := p.svc.Guard.Store(ctx, cache.KindDerivatives, day, payload); err != nil {
		return report, err
	}

	logx.WithContext(ctx).Infof("snapshot: captured day=%s exchanges=%d contracts=%d path=%s",
		dayStr, report.Exchanges, report.Contracts, path)
	return report, nil
}

// contractRows normalizes venue tickers, skipping contracts that carry no
// price at all.
func contractRows(day, exchangeID string, tickers []coingecko.DerivativesContract) []lake.ContractRow {
	rows := make([]lake.ContractRow, 0, len(tickers))
	for _, t := range tickers {
		last, ok := coingecko.Float(t.Last)
		if !ok {
			continue
		}
		row := lake.ContractRow{
			Date:         day,
			Exchange:     exchangeID,
			Symbol:       t.Symbol,
			Base:         t.Base,
			Target:       t.Target,
			ContractType: t.ContractType,
			LastPrice:    &last,
		}
		if v, ok := coingecko.Float(t.Converted.USD); ok {
			row.Volume24h = &v
		}
		if v, ok := coingecko.Float(t.FundingRate); ok {
			row.FundingRate = &v
		}
		if v, ok := coingecko.Float(t.OpenInterest); ok {
			row.OpenInterest = &v
		}
		rows = append(rows, row)
	}
	return rows
}

func classifySnapshotErr(scope string, err error) error {
	if err == context.Canceled || err == context.DeadlineExceeded {
		return err
	}
	reason := fetch.ReasonProviderUnavailable
	if provider.IsPermanent(err) {
		reason = fetch.ReasonPermanent
	}
	return &fetch.FetchError{
		Provider: "coingecko", Variant: scope, Kind: string(cache.KindDerivatives),
		Reason: reason, Err: err,
	}
}
