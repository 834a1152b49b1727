// Package canonical merges per-variant series into one series per
// canonical asset. Wrapped and bridged listings of the same underlying
// asset collapse into a single row per day.
package canonical

import (
	"sort"

	"coinlake/internal/record"
)

// Engine folds variant rows into canonical rows. Level metrics (prices,
// scores) are taken from the highest-priority variant carrying them;
// flow metrics (volumes) are summed across every variant in the group.
type Engine struct {
	rank func(variantID string) int
}

// New builds an engine. rank maps a variant to its priority rank, lower
// meaning more authoritative; unknown variants should rank last.
func New(rank func(variantID string) int) *Engine {
	if rank == nil {
		rank = func(string) int { return 0 }
	}
	return &Engine{rank: rank}
}

type groupKey struct {
	canonical string
	unix      int64
}

// Canonicalize merges rows sharing a canonical identity and timestamp.
// Rows without a canonical mapping pass through untouched. Output order
// is deterministic regardless of input order: sorted by identifier, then
// timestamp.
func (e *Engine) Canonicalize(rows []record.TimeSeries) []record.TimeSeries {
	out := make([]record.TimeSeries, 0, len(rows))
	groups := make(map[groupKey][]record.TimeSeries)

	for _, row := range rows {
		if row.CanonicalID == "" {
			out = append(out, row)
			continue
		}
		key := groupKey{canonical: row.CanonicalID, unix: row.Timestamp.Unix()}
		groups[key] = append(groups[key], row)
	}

	for key, members := range groups {
		out = append(out, e.merge(key, members))
	}

	record.SortCanonical(out)
	return out
}

// merge resolves one (canonical, timestamp) group. Members are ordered by
// rank, then variant, then source, so the result does not depend on
// arrival order even when one variant contributes several rows for the
// same day.
func (e *Engine) merge(key groupKey, members []record.TimeSeries) record.TimeSeries {
	sort.Slice(members, func(i, j int) bool {
		ri, rj := e.rank(members[i].VariantID), e.rank(members[j].VariantID)
		if ri != rj {
			return ri < rj
		}
		if members[i].VariantID != members[j].VariantID {
			return members[i].VariantID < members[j].VariantID
		}
		return members[i].Source < members[j].Source
	})

	metrics := make(map[string]float64)
	for _, name := range record.MetricUnion(members) {
		switch record.Classify(name) {
		case record.ClassFlow:
			var total float64
			var seen bool
			for _, member := range members {
				if v, ok := member.Metrics[name]; ok {
					total += v
					seen = true
				}
			}
			if seen {
				metrics[name] = total
			}
		default:
			// First member carrying the metric wins; later members only
			// fill gaps the preferred variant left open.
			for _, member := range members {
				if v, ok := member.Metrics[name]; ok {
					metrics[name] = v
					break
				}
			}
		}
	}

	return record.TimeSeries{
		VariantID:   key.canonical,
		CanonicalID: key.canonical,
		Timestamp:   members[0].Timestamp,
		Metrics:     metrics,
	}
}
