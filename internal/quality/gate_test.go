package quality

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"coinlake/internal/record"
)

func candleRow(id string, day int, open, high, low, closePx float64) record.TimeSeries {
	return record.TimeSeries{
		CanonicalID: id,
		Timestamp:   time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, day),
		Metrics: map[string]float64{
			record.MetricOpen:  open,
			record.MetricHigh:  high,
			record.MetricLow:   low,
			record.MetricClose: closePx,
		},
	}
}

func TestGatePassesCleanBatch(t *testing.T) {
	gate := New(DefaultConfig())
	rows := []record.TimeSeries{
		candleRow("bitcoin", 0, 100, 110, 95, 105),
		candleRow("bitcoin", 1, 105, 120, 100, 118),
	}

	out, report, err := gate.Run(rows)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.True(t, report.Passed)
	require.Equal(t, 2, report.InputRows)
	require.Equal(t, 2, report.OutputRows)
	require.Empty(t, report.DroppedByReason)
}

func TestGateSchemaFailFast(t *testing.T) {
	gate := New(DefaultConfig())
	rows := []record.TimeSeries{
		candleRow("bitcoin", 0, 100, 110, 95, 105),
		// This row would trip the NaN filter, but validation must abort
		// before sanitation ever sees it.
		candleRow("bitcoin", 1, math.NaN(), 110, 95, 105),
	}
	// No row in the batch carries a close at all.
	for i := range rows {
		delete(rows[i].Metrics, record.MetricClose)
	}

	out, report, err := gate.Run(rows)
	require.Nil(t, out)
	require.False(t, report.Passed)
	require.Empty(t, report.DroppedByReason)

	var qerr *QualityError
	require.ErrorAs(t, err, &qerr)
	require.Equal(t, ReasonSchemaViolation, qerr.Reason)
	require.Contains(t, qerr.Detail, "close")
}

func TestGateAcceptsMixedKindBatch(t *testing.T) {
	gate := New(DefaultConfig())
	// A TVL-only row and a social-only row satisfy no candle column by
	// themselves; the batch does, through the candle row.
	rows := []record.TimeSeries{
		candleRow("bitcoin", 0, 100, 110, 95, 105),
		{
			CanonicalID: "lido",
			Timestamp:   time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
			Metrics:     map[string]float64{record.MetricProtocolTVL: 1.2e9},
		},
		{
			CanonicalID: "bitcoin",
			Timestamp:   time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
			Metrics:     map[string]float64{record.MetricSocialScore: 71.5},
		},
	}

	out, report, err := gate.Run(rows)
	require.NoError(t, err)
	require.Len(t, out, 3)
	require.True(t, report.Passed)
	require.Empty(t, report.DroppedByReason)
}

func TestGateRejectsMissingIdentifier(t *testing.T) {
	gate := New(DefaultConfig())
	rows := []record.TimeSeries{
		candleRow("bitcoin", 0, 100, 110, 95, 105),
		{Timestamp: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), Metrics: map[string]float64{record.MetricClose: 1}},
	}

	_, _, err := gate.Run(rows)
	var qerr *QualityError
	require.ErrorAs(t, err, &qerr)
	require.Equal(t, ReasonSchemaViolation, qerr.Reason)
	require.Contains(t, qerr.Detail, "identifier")
}

func TestGateDropsOHLCViolations(t *testing.T) {
	gate := New(Config{LossThreshold: 0.5})
	rows := []record.TimeSeries{
		candleRow("bitcoin", 0, 100, 110, 95, 105),
		candleRow("bitcoin", 1, 100, 90, 95, 105), // high below open
	}

	out, report, err := gate.Run(rows)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, 1, report.DroppedByReason[DropOHLCViolation])
}

func TestGateToleranceAbsorbsFloatNoise(t *testing.T) {
	gate := New(DefaultConfig())
	// high a hair under close; within 1e-6 tolerance.
	rows := []record.TimeSeries{
		candleRow("bitcoin", 0, 100, 105-5e-7, 95, 105),
	}

	out, _, err := gate.Run(rows)
	require.NoError(t, err)
	require.Len(t, out, 1)
}

func TestGateDropsInvalidNumerics(t *testing.T) {
	gate := New(Config{LossThreshold: 0.9})
	rows := []record.TimeSeries{
		candleRow("bitcoin", 0, 100, 110, 95, 105),
		candleRow("bitcoin", 1, math.NaN(), 110, 95, 105),
		candleRow("bitcoin", 2, math.Inf(1), 110, 95, 105),
		candleRow("bitcoin", 3, -5, 110, 95, 105),
	}

	out, report, err := gate.Run(rows)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, 3, report.DroppedByReason[DropInvalidNumeric])
}

func TestGateChargesOneReasonPerRow(t *testing.T) {
	gate := New(Config{LossThreshold: 0.9})
	// NaN open and an inconsistent candle; only invalid_numeric counts.
	row := candleRow("bitcoin", 0, math.NaN(), 90, 95, 105)

	_, report, err := gate.Run([]record.TimeSeries{row, candleRow("bitcoin", 1, 100, 110, 95, 105)})
	require.NoError(t, err)
	require.Equal(t, 1, report.DroppedByReason[DropInvalidNumeric])
	require.Zero(t, report.DroppedByReason[DropOHLCViolation])
	require.Equal(t, 1, report.Dropped())
}

func TestGateCircuitBoundary(t *testing.T) {
	build := func(badCount int) []record.TimeSeries {
		rows := make([]record.TimeSeries, 0, 1000)
		for i := 0; i < 1000; i++ {
			if i < badCount {
				rows = append(rows, candleRow(fmt.Sprintf("asset-%04d", i), i%28, math.NaN(), 110, 95, 105))
			} else {
				rows = append(rows, candleRow(fmt.Sprintf("asset-%04d", i), i%28, 100, 110, 95, 105))
			}
		}
		return rows
	}

	t.Run("49 of 1000 passes", func(t *testing.T) {
		out, report, err := New(DefaultConfig()).Run(build(49))
		require.NoError(t, err)
		require.Len(t, out, 951)
		require.True(t, report.Passed)
	})

	t.Run("exactly at threshold passes", func(t *testing.T) {
		out, _, err := New(DefaultConfig()).Run(build(50))
		require.NoError(t, err)
		require.Len(t, out, 950)
	})

	t.Run("51 of 1000 trips and discards everything", func(t *testing.T) {
		out, report, err := New(DefaultConfig()).Run(build(51))
		require.Nil(t, out)
		require.False(t, report.Passed)
		require.Zero(t, report.OutputRows)

		var qerr *QualityError
		require.ErrorAs(t, err, &qerr)
		require.Equal(t, ReasonLossThresholdExceeded, qerr.Reason)
	})
}

func TestStandardizeRoundingIdempotent(t *testing.T) {
	gate := New(DefaultConfig())
	row := candleRow("bitcoin", 0, 100.12345678901234567, 110.98765432109876543, 95.5, 105.1)

	once, _, err := gate.Run([]record.TimeSeries{row})
	require.NoError(t, err)
	twice, _, err := gate.Run(once)
	require.NoError(t, err)

	for name, v := range once[0].Metrics {
		require.Equal(t, v, twice[0].Metrics[name], "metric %s changed on second pass", name)
	}
}

func TestStandardizeLeavesFlowMetricsAlone(t *testing.T) {
	gate := New(Config{RequiredMetrics: []string{record.MetricVolume}})
	volume := 12345.000000000000000123
	row := record.TimeSeries{
		CanonicalID: "bitcoin",
		Timestamp:   time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Metrics:     map[string]float64{record.MetricVolume: volume},
	}

	out, _, err := gate.Run([]record.TimeSeries{row})
	require.NoError(t, err)
	require.Equal(t, volume, out[0].Metrics[record.MetricVolume])
}

func TestRoundToLargeValuesUnchanged(t *testing.T) {
	huge := 1e30
	require.Equal(t, huge, roundTo(huge, 16))
}
