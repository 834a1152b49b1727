// Package lake persists gated output as columnar files. One file per
// dataset per run; files are written to a temp path and renamed so a
// crashed run never leaves a half-written file behind.
package lake

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"

	"coinlake/internal/record"
)

// SeriesRow is the on-disk schema for canonical daily series. Metrics a
// row never carried stay null instead of zero.
type SeriesRow struct {
	Date        string   `parquet:"date" json:"date"`
	CanonicalID string   `parquet:"canonical_id" json:"canonical_id"`
	Open        *float64 `parquet:"open,optional" json:"open,omitempty"`
	High        *float64 `parquet:"high,optional" json:"high,omitempty"`
	Low         *float64 `parquet:"low,optional" json:"low,omitempty"`
	Close       *float64 `parquet:"close,optional" json:"close,omitempty"`
	Volume      *float64 `parquet:"volume,optional" json:"volume,omitempty"`
	MarketCap   *float64 `parquet:"market_cap,optional" json:"market_cap,omitempty"`
	ProtocolTVL *float64 `parquet:"protocol_tvl,optional" json:"protocol_tvl,omitempty"`
	DexVolume   *float64 `parquet:"dex_volume,optional" json:"dex_volume,omitempty"`
	SocialScore *float64 `parquet:"social_score,optional" json:"social_score,omitempty"`
	Sentiment   *float64 `parquet:"sentiment_score,optional" json:"sentiment_score,omitempty"`
}

// ContractRow is the on-disk schema for the daily derivatives snapshot.
type ContractRow struct {
	Date         string   `parquet:"date" json:"date"`
	Exchange     string   `parquet:"exchange" json:"exchange"`
	Symbol       string   `parquet:"symbol" json:"symbol"`
	Base         string   `parquet:"base" json:"base"`
	Target       string   `parquet:"target" json:"target"`
	ContractType string   `parquet:"contract_type" json:"contract_type"`
	LastPrice    *float64 `parquet:"last_price,optional" json:"last_price,omitempty"`
	Volume24h    *float64 `parquet:"volume_24h,optional" json:"volume_24h,omitempty"`
	FundingRate  *float64 `parquet:"funding_rate,optional" json:"funding_rate,omitempty"`
	OpenInterest *float64 `parquet:"open_interest,optional" json:"open_interest,omitempty"`
}

// Writer lays files out under one root directory.
type Writer struct {
	dir string
}

// NewWriter creates the output root if needed.
func NewWriter(dir string) (*Writer, error) {
	if dir == "" {
		return nil, fmt.Errorf("lake: output dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("lake: create output dir: %w", err)
	}
	return &Writer{dir: dir}, nil
}

// Path returns the absolute path a dataset file will land at.
func (w *Writer) Path(name string) string {
	return filepath.Join(w.dir, name)
}

// WriteSeries persists canonical rows as parquet. Rows are expected
// already sorted; the writer preserves order.
func (w *Writer) WriteSeries(name string, rows []record.TimeSeries) (string, error) {
	out := make([]SeriesRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, toSeriesRow(row))
	}
	path := w.Path(name)
	if err := writeParquet(path, out); err != nil {
		return "", err
	}
	return path, nil
}

// WriteContracts persists the derivatives snapshot as parquet.
func (w *Writer) WriteContracts(name string, rows []ContractRow) (string, error) {
	path := w.Path(name)
	if err := writeParquet(path, rows); err != nil {
		return "", err
	}
	return path, nil
}

func writeParquet[T any](path string, rows []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("lake: create dir for %s: %w", path, err)
	}
	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("lake: create %s: %w", tmp, err)
	}

	writer := parquet.NewGenericWriter[T](file)
	if _, err := writer.Write(rows); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("lake: write %s: %w", path, err)
	}
	if err := writer.Close(); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("lake: flush %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("lake: close %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("lake: publish %s: %w", path, err)
	}
	return nil
}

// ReadSeries loads a series file back, used by verification tooling and
// tests.
func ReadSeries(path string) ([]SeriesRow, error) {
	rows, err := parquet.ReadFile[SeriesRow](path)
	if err != nil {
		return nil, fmt.Errorf("lake: read %s: %w", path, err)
	}
	return rows, nil
}

func toSeriesRow(row record.TimeSeries) SeriesRow {
	out := SeriesRow{
		Date:        row.Timestamp.UTC().Format("2006-01-02"),
		CanonicalID: row.ID(),
	}
	assign := func(dst **float64, name string) {
		if v, ok := row.Metrics[name]; ok {
			value := v
			*dst = &value
		}
	}
	assign(&out.Open, record.MetricOpen)
	assign(&out.High, record.MetricHigh)
	assign(&out.Low, record.MetricLow)
	assign(&out.Close, record.MetricClose)
	assign(&out.Volume, record.MetricVolume)
	assign(&out.MarketCap, record.MetricMarketCap)
	assign(&out.ProtocolTVL, record.MetricProtocolTVL)
	assign(&out.DexVolume, record.MetricDexVolume)
	assign(&out.SocialScore, record.MetricSocialScore)
	assign(&out.Sentiment, record.MetricSentiment)
	return out
}
