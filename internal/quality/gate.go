// Package quality gates canonical output before it reaches the lake. A
// batch flows through four stages in order: validate, standardize,
// sanitize, circuit check. Bad rows are dropped and counted; too many
// drops trip the circuit and discard the whole batch.
package quality

import (
	"fmt"
	"math"
	"strconv"

	"coinlake/internal/record"
)

// Failure reasons carried by QualityError.
const (
	ReasonSchemaViolation       = "schema_violation"
	ReasonLossThresholdExceeded = "loss_threshold_exceeded"
)

// Row drop reasons counted in the report. A row is charged exactly one
// reason, the first check it fails.
const (
	DropInvalidNumeric = "invalid_numeric"
	DropOHLCViolation  = "ohlc_violation"
)

// QualityError aborts a batch. Schema violations fail fast before any row
// is processed further; a tripped circuit discards everything the earlier
// stages let through.
type QualityError struct {
	Reason string
	Detail string
}

func (e *QualityError) Error() string {
	return fmt.Sprintf("quality: %s: %s", e.Reason, e.Detail)
}

// Config shapes one gate.
type Config struct {
	// LossThreshold is the dropped-row fraction above which the circuit
	// trips. Exactly at the threshold still passes.
	LossThreshold float64
	// PricePrecision is the decimal places level metrics are rounded to.
	PricePrecision int
	// Tolerance absorbs float noise in candle consistency checks.
	Tolerance float64
	// RequiredMetrics are columns that must appear somewhere in the batch.
	// Individual rows may omit them; a batch where a required metric is
	// absent everywhere is structurally broken. Empty means only the
	// identifier and timestamp are required.
	RequiredMetrics []string
}

// DefaultConfig matches the daily candle pipeline.
func DefaultConfig() Config {
	return Config{
		LossThreshold:   0.05,
		PricePrecision:  16,
		Tolerance:       1e-6,
		RequiredMetrics: []string{record.MetricOpen, record.MetricHigh, record.MetricLow, record.MetricClose},
	}
}

// Report summarizes one gate run.
type Report struct {
	InputRows       int
	OutputRows      int
	DroppedByReason map[string]int
	Passed          bool
}

// Dropped is the total row count removed by sanitation.
func (r Report) Dropped() int {
	var total int
	for _, n := range r.DroppedByReason {
		total += n
	}
	return total
}

// Gate applies the four-stage quality pipeline.
type Gate struct {
	cfg Config
}

// New builds a gate, filling zero config fields with defaults.
func New(cfg Config) *Gate {
	def := DefaultConfig()
	if cfg.LossThreshold <= 0 {
		cfg.LossThreshold = def.LossThreshold
	}
	if cfg.PricePrecision <= 0 {
		cfg.PricePrecision = def.PricePrecision
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = def.Tolerance
	}
	return &Gate{cfg: cfg}
}

// Run gates a batch. On success the returned rows are the survivors in
// input order with level metrics rounded. On failure the returned rows
// are nil; partial output never leaves the gate.
func (g *Gate) Run(rows []record.TimeSeries) ([]record.TimeSeries, Report, error) {
	report := Report{
		InputRows:       len(rows),
		DroppedByReason: make(map[string]int),
	}

	if err := g.validate(rows); err != nil {
		return nil, report, err
	}

	kept := make([]record.TimeSeries, 0, len(rows))
	for _, row := range rows {
		row = g.standardize(row)
		if reason, ok := g.reject(row); ok {
			report.DroppedByReason[reason]++
			continue
		}
		kept = append(kept, row)
	}

	if len(rows) > 0 {
		loss := float64(report.Dropped()) / float64(len(rows))
		if loss > g.cfg.LossThreshold {
			return nil, report, &QualityError{
				Reason: ReasonLossThresholdExceeded,
				Detail: fmt.Sprintf("dropped %d of %d rows (%.2f%% > %.2f%%)",
					report.Dropped(), len(rows), loss*100, g.cfg.LossThreshold*100),
			}
		}
	}

	report.OutputRows = len(kept)
	report.Passed = true
	return kept, report, nil
}

// validate fails fast on the first structural defect. No row is touched
// until the whole batch is known to carry the required shape. Required
// metrics are checked against the union of columns the batch carries;
// mixed-kind batches legitimately hold rows that each cover only part of
// the schema.
func (g *Gate) validate(rows []record.TimeSeries) error {
	for i, row := range rows {
		if row.ID() == "" {
			return &QualityError{
				Reason: ReasonSchemaViolation,
				Detail: fmt.Sprintf("row %d: missing identifier", i),
			}
		}
		if row.Timestamp.IsZero() {
			return &QualityError{
				Reason: ReasonSchemaViolation,
				Detail: fmt.Sprintf("row %d (%s): missing timestamp", i, row.ID()),
			}
		}
	}

	if len(rows) == 0 {
		return nil
	}
	present := make(map[string]struct{})
	for _, name := range record.MetricUnion(rows) {
		present[name] = struct{}{}
	}
	for _, name := range g.cfg.RequiredMetrics {
		if _, ok := present[name]; !ok {
			return &QualityError{
				Reason: ReasonSchemaViolation,
				Detail: fmt.Sprintf("batch of %d rows: missing column %s", len(rows), name),
			}
		}
	}
	return nil
}

// standardize rounds level metrics to the configured precision. Flow
// metrics are left alone; sums should not lose mass to rounding.
func (g *Gate) standardize(row record.TimeSeries) record.TimeSeries {
	metrics := make(map[string]float64, len(row.Metrics))
	for name, value := range row.Metrics {
		if record.Classify(name) == record.ClassLevel {
			value = roundTo(value, g.cfg.PricePrecision)
		}
		metrics[name] = value
	}
	row.Metrics = metrics
	return row
}

// reject reports the first sanitation rule a row violates.
func (g *Gate) reject(row record.TimeSeries) (string, bool) {
	for _, value := range row.Metrics {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return DropInvalidNumeric, true
		}
	}
	for _, name := range []string{record.MetricOpen, record.MetricHigh, record.MetricLow, record.MetricClose} {
		if value, ok := row.Metrics[name]; ok && value < 0 {
			return DropInvalidNumeric, true
		}
	}

	open, hasOpen := row.Metrics[record.MetricOpen]
	high, hasHigh := row.Metrics[record.MetricHigh]
	low, hasLow := row.Metrics[record.MetricLow]
	closePx, hasClose := row.Metrics[record.MetricClose]
	if hasOpen && hasHigh && hasLow && hasClose {
		tol := g.cfg.Tolerance
		if high < low-tol ||
			high < math.Max(open, closePx)-tol ||
			low > math.Min(open, closePx)+tol {
			return DropOHLCViolation, true
		}
	}
	return "", false
}

// roundTo rounds to the given decimal place by round-tripping through the
// correctly-rounded decimal form. Unlike scale-round-divide it is exactly
// idempotent: rounding an already-rounded value is a no-op bit for bit.
func roundTo(value float64, places int) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return value
	}
	rounded, err := strconv.ParseFloat(strconv.FormatFloat(value, 'f', places, 64), 64)
	if err != nil {
		return value
	}
	return rounded
}
