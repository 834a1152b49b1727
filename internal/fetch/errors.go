package fetch

import "fmt"

// Failure reasons carried by FetchError. Reasons are stable strings used
// in logs and process exit diagnostics.
const (
	ReasonProviderUnavailable = "provider_unavailable"
	ReasonPermanent           = "permanent"
)

// FetchError is the terminal failure of one fetch request after cache
// lookup, rate limiting, and retries have all run their course.
type FetchError struct {
	Provider string
	Variant  string
	Kind     string
	Reason   string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s/%s/%s: %s: %v", e.Provider, e.Variant, e.Kind, e.Reason, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
