package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"coinlake/internal/fetch"
	"coinlake/internal/objcache"
	"coinlake/internal/quality"
)

// Machine-readable failure reasons emitted on a non-zero exit. Operators
// and schedulers branch on these, so they change only deliberately.
const (
	ReasonConfig   = "config_invalid"
	ReasonStorage  = "storage_error"
	ReasonCanceled = "canceled"
	ReasonInternal = "internal"
)

// Reason folds any run error into its machine-readable reason code.
func Reason(err error) string {
	if err == nil {
		return ""
	}

	var fetchErr *fetch.FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Reason
	}
	var qualityErr *quality.QualityError
	if errors.As(err, &qualityErr) {
		return qualityErr.Reason
	}
	var storageErr *objcache.StorageError
	if errors.As(err, &storageErr) {
		return ReasonStorage
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ReasonCanceled
	}
	return ReasonInternal
}

// Fail prints the structured failure line and exits non-zero.
func Fail(component string, err error) {
	fmt.Fprintf(os.Stderr, "%s: run failed reason=%s err=%v\n", component, Reason(err), err)
	os.Exit(1)
}

// ReportLines renders the quality breakdown of a run, one line per drop
// reason in a stable order.
func ReportLines(report quality.Report) []string {
	lines := []string{
		fmt.Sprintf("quality: in=%d out=%d dropped=%d", report.InputRows, report.OutputRows, report.Dropped()),
	}
	reasons := make([]string, 0, len(report.DroppedByReason))
	for reason := range report.DroppedByReason {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		lines = append(lines, fmt.Sprintf("quality: dropped reason=%s rows=%d", reason, report.DroppedByReason[reason]))
	}
	return lines
}

// FailWithReport prints the failure line plus the quality breakdown, so a
// rejected batch tells the operator what was dropped and why, then exits
// non-zero.
func FailWithReport(component string, err error, report quality.Report) {
	fmt.Fprintf(os.Stderr, "%s: run failed reason=%s err=%v\n", component, Reason(err), err)
	for _, line := range ReportLines(report) {
		fmt.Fprintf(os.Stderr, "%s: %s\n", component, line)
	}
	os.Exit(1)
}
