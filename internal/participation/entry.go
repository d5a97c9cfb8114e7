package participation

import (
	"fmt"
	"sort"
	"strings"
	"time"

	v1 "github.com/catalyst-ed/project-catalyst/internal/api/v1"
)

const (
	// maxWindowKeys bounds a cache entry; exceeding it triggers truncation.
	maxWindowKeys = 1000

	// keepWindowKeys is how many of the most recent windows survive a
	// truncation. Discarding 90% keeps truncation rare even when sustained
	// writes keep re-filling one entity's entry.
	keepWindowKeys = 100

	// windowTimeLayout is RFC3339 at second precision in UTC. Fixed width,
	// so lexical order of encoded times equals chronological order.
	windowTimeLayout = "2006-01-02T15:04:05Z07:00"
)

// entityKey is the cache key for single-scope lookups, one entry per
// survey_id or project_cohort_id.
func entityKey(id string) string {
	return "participation:" + id
}

// batchKey is a distinct namespace for the multi-entity shape, keyed per id
// or per code. Both forms are cached independently since a caller may
// address the same logical entity either way.
func batchKey(idOrCode string) string {
	return "participation:batch:" + idOrCode
}

// windowKey encodes a (start, end) time filter as "{isoStart},{isoEnd}".
// An unbounded side encodes as the empty string.
func windowKey(start, end *time.Time) string {
	return encodeWindowBound(start) + "," + encodeWindowBound(end)
}

func encodeWindowBound(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(windowTimeLayout)
}

// decodeWindowKey recovers the (start, end) bounds from a window key.
// A nil bound means that side is unbounded.
func decodeWindowKey(key string) (start, end *time.Time, err error) {
	parts := strings.SplitN(key, ",", 2)
	if len(parts) != 2 {
		return nil, nil, fmt.Errorf("malformed window key %q", key)
	}

	if parts[0] != "" {
		t, parseErr := time.Parse(windowTimeLayout, parts[0])
		if parseErr != nil {
			return nil, nil, fmt.Errorf("malformed window start in %q: %w", key, parseErr)
		}
		start = &t
	}
	if parts[1] != "" {
		t, parseErr := time.Parse(windowTimeLayout, parts[1])
		if parseErr != nil {
			return nil, nil, fmt.Errorf("malformed window end in %q: %w", key, parseErr)
		}
		end = &t
	}
	return start, end, nil
}

// windowContains reports whether t falls within the half-open [start, end)
// range encoded in key. Undecodable keys report true so the invalidator
// clears them rather than serving garbage forever.
func windowContains(key string, t time.Time) bool {
	start, end, err := decodeWindowKey(key)
	if err != nil {
		return true
	}
	if start != nil && t.Before(*start) {
		return false
	}
	if end != nil && !t.Before(*end) {
		return false
	}
	return true
}

// resultEntry is one cached single-scope entry: window key -> count rows.
type resultEntry map[string][]v1.ParticipationCount

// batchEntry is one cached multi-entity entry: window key -> tagged rows.
type batchEntry map[string][]v1.EntityParticipationCount

// truncateWindows enforces the per-entry bound: once an entry exceeds
// maxWindowKeys windows, only the lexically-greatest (= most recent)
// keepWindowKeys survive.
func truncateWindows[V any](entry map[string]V) {
	if len(entry) <= maxWindowKeys {
		return
	}

	keys := make([]string, 0, len(entry))
	for key := range entry {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys[:len(keys)-keepWindowKeys] {
		delete(entry, key)
	}
}
