// Package runlog records pipeline run outcomes in Postgres so operators
// can audit what was ingested when, and why a run failed. Recording is
// best-effort; a missing database never blocks ingestion.
package runlog

import (
	"context"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

// Entry is one pipeline run outcome.
type Entry struct {
	Pipeline   string
	Day        time.Time
	InputRows  int
	OutputRows int
	Dropped    int
	Status     string // ok | failed | skipped
	Reason     string // failure reason code, empty on success
	OutputPath string
	Duration   time.Duration
}

// Recorder persists run entries.
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}

type dbRecorder struct {
	conn sqlx.SqlConn
}

// NewRecorder wraps a database connection.
func NewRecorder(conn sqlx.SqlConn) Recorder {
	return &dbRecorder{conn: conn}
}

func (r *dbRecorder) Record(ctx context.Context, entry Entry) error {
	query := `
INSERT INTO public.pipeline_runs
    (pipeline, run_day, input_rows, output_rows, dropped_rows, status, reason, output_path, duration_ms, recorded_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())`

	_, err := r.conn.ExecCtx(ctx, query,
		entry.Pipeline,
		entry.Day.UTC().Format("2006-01-02"),
		entry.InputRows,
		entry.OutputRows,
		entry.Dropped,
		entry.Status,
		entry.Reason,
		entry.OutputPath,
		entry.Duration.Milliseconds(),
	)
	return err
}

// RecordBestEffort logs instead of failing when the insert cannot land.
func RecordBestEffort(ctx context.Context, rec Recorder, entry Entry) {
	if rec == nil {
		return
	}
	if err := rec.Record(ctx, entry); err != nil {
		logx.WithContext(ctx).Errorf("runlog: record pipeline=%s status=%s err=%v", entry.Pipeline, entry.Status, err)
	}
}
