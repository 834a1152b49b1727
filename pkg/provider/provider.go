package provider

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Provider exposes one external market-data source. Implementations own
// their HTTP details (endpoints, pagination, auth); callers only see
// normalized points or a classified error.
type Provider interface {
	// FetchSeries returns the time series for one variant and data kind.
	FetchSeries(ctx context.Context, req Request) ([]Point, error)
}

// Request identifies one logical fetch.
type Request struct {
	VariantID string // provider-native asset identifier
	Kind      string // data kind, e.g. "market_chart", "onchain"
	Period    string // provider-specific range, e.g. "max", "90d"
}

// Point is one normalized observation. Metrics absent from the source are
// absent from the map.
type Point struct {
	Timestamp time.Time
	Metrics   map[string]float64
}

// TransientError marks a failure worth retrying: throttling, timeouts,
// upstream 5xx. Retry policy lives with the caller, not here.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("provider: transient: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a failure where the request itself is invalid and a
// retry can never succeed (unknown asset, bad parameters, 4xx).
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return fmt.Sprintf("provider: permanent: %v", e.Err) }
func (e *PermanentError) Unwrap() error { return e.Err }

// Transient wraps err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// Permanent wraps err as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsTransient reports whether err is classified retryable. Context
// cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var te *TransientError
	return errors.As(err, &te)
}

// IsPermanent reports whether err is classified non-retryable.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
