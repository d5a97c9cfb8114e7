package participation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	v1 "github.com/catalyst-ed/project-catalyst/internal/api/v1"
	"github.com/catalyst-ed/project-catalyst/internal/cache"
	"github.com/catalyst-ed/project-catalyst/internal/core/storage"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrInvalidDatum marks upsert candidates missing required attributes.
	ErrInvalidDatum = errors.New("invalid participant datum")

	// ErrInvalidProgressValue is returned when a progress value does not
	// parse as an integer in [0, 100].
	ErrInvalidProgressValue = errors.New("invalid progress value")

	// ErrProgressRegression is returned when a progress write is numerically
	// below the stored value and is not the terminal value. Duplicate and
	// out-of-order client retries hit this constantly; callers usually
	// log-and-ignore rather than error the end user.
	ErrProgressRegression = errors.New("progress value regression")
)

// participantDataKeys is the whitelist for the per-participant read path.
// Free-text survey answers live under arbitrary keys and are excluded from
// that path as sensitive.
var participantDataKeys = []string{
	v1.KeyProgress,
	v1.KeyLink,
	v1.KeyCondition,
	v1.KeyConsent,
	"saw_baseline",
	"saw_demographics",
	"saw_validation",
}

// Service is the participation aggregation-and-cache engine. Reads check the
// cache before falling back to SQL; writes flow through the upsert guard and
// then invalidate exactly the cached windows they made stale.
type Service struct {
	data         storage.DatumStore
	participants storage.ParticipantStore
	cache        cache.Service

	// missGroup dedupes concurrent recomputation of one (entity, window)
	// on the single-scope read path.
	missGroup singleflight.Group

	nowFn func() time.Time
}

// NewService creates a new participation service.
func NewService(data storage.DatumStore, participants storage.ParticipantStore, cacheSvc cache.Service) *Service {
	if data == nil {
		panic("participation: datum store must not be nil")
	}
	if participants == nil {
		panic("participation: participant store must not be nil")
	}
	if cacheSvc == nil {
		panic("participation: cache service must not be nil")
	}
	return &Service{
		data:         data,
		participants: participants,
		cache:        cacheSvc,
		nowFn: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// GetOrCreateParticipant resolves a candidate identity to its one row,
// creating it on first contact.
func (s *Service) GetOrCreateParticipant(ctx context.Context, p *v1.Participant) (*v1.Participant, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDatum, err)
	}
	return s.participants.GetOrCreateParticipant(ctx, p)
}

// UpsertDatum stores one fact with at-most-one-row semantics per
// (participant_id, survey_id, key) and a monotonicity guarantee on progress.
//
// The conflict path is a named branch, not an incidental error: try-insert,
// on storage.ErrDuplicate fetch the existing row and update it in place,
// preserving the original UID so retries and duplicate submissions converge
// on one row. Successful progress writes invalidate stale cache windows
// before returning, so a subsequent read never sees the new row next to a
// stale cached report for its scope.
func (s *Service) UpsertDatum(ctx context.Context, d *v1.ParticipantDatum) (*v1.ParticipantDatum, error) {
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDatum, err)
	}

	if d.Key == v1.KeyProgress {
		if !v1.IsValidProgressValue(d.Value) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidProgressValue, d.Value)
		}
		if err := s.guardProgress(ctx, d); err != nil {
			return nil, err
		}
	}

	now := s.nowFn()
	stored := *d
	if stored.UID == "" {
		stored.UID = uuid.New().String()
	}
	if stored.Created.IsZero() {
		stored.Created = now
	}
	stored.Modified = now

	err := s.data.InsertDatum(ctx, &stored)
	switch {
	case err == nil:
		// First report of this fact.
	case errors.Is(err, storage.ErrDuplicate):
		existing, getErr := s.data.GetDatum(ctx, stored.ParticipantID, stored.SurveyID, stored.Key)
		if getErr != nil {
			return nil, fmt.Errorf("fetch conflicting datum: %w", getErr)
		}
		if updErr := s.data.UpdateDatumValue(ctx, existing.UID, stored.Value, now); updErr != nil {
			return nil, fmt.Errorf("update conflicting datum: %w", updErr)
		}
		existing.Value = stored.Value
		existing.Modified = now
		stored = *existing
	default:
		return nil, fmt.Errorf("insert datum: %w", err)
	}

	if stored.Key == v1.KeyProgress {
		s.invalidateProgressWindows(ctx, &stored)
	}

	return &stored, nil
}

// guardProgress rejects writes that would move progress backwards. The
// terminal value always passes, even after a numerically-higher bogus value,
// so a legitimate completion can never be locked out.
func (s *Service) guardProgress(ctx context.Context, d *v1.ParticipantDatum) error {
	if d.Value == v1.ProgressComplete {
		return nil
	}

	current, err := s.data.GetDatum(ctx, d.ParticipantID, d.SurveyID, v1.KeyProgress)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read stored progress: %w", err)
	}

	storedValue, err := strconv.Atoi(current.Value)
	if err != nil {
		// Unparseable stored value cannot veto forward progress.
		return nil
	}
	candidate, _ := strconv.Atoi(d.Value)
	if storedValue > candidate {
		return fmt.Errorf("%w: stored %d, submitted %d", ErrProgressRegression, storedValue, candidate)
	}
	return nil
}

// Participation answers "how many participants have reached each progress
// marker" for one scope. Plain project-cohort and survey scopes are served
// from the cache when the requested window is present; any cache failure
// degrades to the direct query path.
func (s *Service) Participation(ctx context.Context, scope Scope, start, end *time.Time) ([]v1.ParticipationCount, error) {
	dim, value, err := scope.Resolve()
	if err != nil {
		return nil, err
	}

	if !scope.cacheable() {
		return s.data.CountProgress(ctx, dim, value, scope.CohortLabel, start, end)
	}

	key := entityKey(value)
	window := windowKey(start, end)

	if counts, ok := s.cachedCounts(ctx, key, window); ok {
		return counts, nil
	}

	result, err, _ := s.missGroup.Do(key+"|"+window, func() (interface{}, error) {
		// A concurrent caller may have filled the window while we waited.
		if counts, ok := s.cachedCounts(ctx, key, window); ok {
			return counts, nil
		}

		counts, queryErr := s.data.CountProgress(ctx, dim, value, "", start, end)
		if queryErr != nil {
			return nil, queryErr
		}
		if counts == nil {
			counts = []v1.ParticipationCount{}
		}
		s.storeCounts(ctx, key, window, counts)
		return counts, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]v1.ParticipationCount), nil
}

// cachedCounts returns the cached rows for one (entity, window), reporting a
// miss on any cache error or undecodable entry.
func (s *Service) cachedCounts(ctx context.Context, key, window string) ([]v1.ParticipationCount, bool) {
	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("[Participation] Cache read failed, degrading to direct query", "key", key, "error", err)
		return nil, false
	}
	if raw == nil {
		return nil, false
	}

	var entry resultEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		slog.Warn("[Participation] Discarding undecodable cache entry", "key", key, "error", err)
		return nil, false
	}

	counts, ok := entry[window]
	return counts, ok
}

// storeCounts merges one window result into the entity's entry, truncating
// when the entry outgrows its bound. Cache write failures are logged and
// swallowed; the caller already holds the SQL-computed result.
func (s *Service) storeCounts(ctx context.Context, key, window string, counts []v1.ParticipationCount) {
	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("[Participation] Cache read failed, skipping write-back", "key", key, "error", err)
		return
	}

	entry := resultEntry{}
	if raw != nil {
		if err := json.Unmarshal(raw, &entry); err != nil {
			entry = resultEntry{}
		}
	}

	entry[window] = counts
	truncateWindows(entry)

	buf, err := json.Marshal(entry)
	if err != nil {
		slog.Warn("[Participation] Failed to encode cache entry", "key", key, "error", err)
		return
	}
	if err := s.cache.Set(ctx, key, buf); err != nil {
		slog.Warn("[Participation] Cache write failed", "key", key, "error", err)
	}
}

// ParticipationByEntities answers the multi-entity count shape for N ids (or
// their shareable codes) in one pass: one batched cache read, exactly one
// SQL query covering all cache misses, one batched cache write. The returned
// map has an entry for every requested id; ids with no matching rows map to
// an empty slice.
func (s *Service) ParticipationByEntities(
	ctx context.Context,
	ids []string,
	usingCodes bool,
	start, end *time.Time,
) (map[string][]v1.EntityParticipationCount, error) {
	ids = uniqueStrings(ids)
	results := make(map[string][]v1.EntityParticipationCount, len(ids))
	if len(ids) == 0 {
		return results, nil
	}

	window := windowKey(start, end)

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = batchKey(id)
	}

	cached, err := s.cache.MultiGet(ctx, keys)
	cacheHealthy := err == nil
	if err != nil {
		slog.Warn("[Participation] Batched cache read failed, degrading to direct query", "error", err)
		cached = nil
	}

	entries := make(map[string]batchEntry, len(ids))
	var missIDs []string
	for _, id := range ids {
		if raw, ok := cached[batchKey(id)]; ok {
			var entry batchEntry
			if jsonErr := json.Unmarshal(raw, &entry); jsonErr == nil {
				entries[id] = entry
				if counts, ok := entry[window]; ok {
					results[id] = counts
					continue
				}
			}
		}
		missIDs = append(missIDs, id)
	}

	if len(missIDs) == 0 {
		return results, nil
	}

	rows, err := s.data.CountProgressByEntities(ctx, missIDs, usingCodes, start, end)
	if err != nil {
		return nil, fmt.Errorf("query entity participation: %w", err)
	}

	// Redistribute the single query's rows per owning id. Every miss id gets
	// an entry, so callers (and the cache) see an explicit empty result for
	// entities with no matching data.
	byID := make(map[string][]v1.EntityParticipationCount, len(missIDs))
	for _, id := range missIDs {
		byID[id] = []v1.EntityParticipationCount{}
	}
	for _, row := range rows {
		owner := row.ProjectCohortID
		if usingCodes {
			owner = row.Code
		}
		if _, ok := byID[owner]; ok {
			byID[owner] = append(byID[owner], row)
		}
	}

	updated := make(map[string][]byte, len(missIDs))
	for id, counts := range byID {
		results[id] = counts

		entry := entries[id]
		if entry == nil {
			entry = batchEntry{}
		}
		entry[window] = counts
		truncateWindows(entry)

		buf, jsonErr := json.Marshal(entry)
		if jsonErr != nil {
			slog.Warn("[Participation] Failed to encode batch cache entry", "id", id, "error", jsonErr)
			continue
		}
		updated[batchKey(id)] = buf
	}

	// The multi-get/multi-set pair is not atomic against a concurrent
	// invalidator run: a window deleted between the two lands again here,
	// already stale. Accepted: the value is still the SQL-computed truth
	// for its window, and the next matching write re-invalidates it.
	if cacheHealthy && len(updated) > 0 {
		if err := s.cache.MultiSet(ctx, updated); err != nil {
			slog.Warn("[Participation] Batched cache write failed", "error", err)
		}
	}

	return results, nil
}

// CompletionIDs lists pseudonymous per-participant progress for one scope.
// Identity lists are never cached.
func (s *Service) CompletionIDs(ctx context.Context, scope Scope, start, end *time.Time) ([]v1.CompletionRow, error) {
	dim, value, err := scope.Resolve()
	if err != nil {
		return nil, err
	}
	if scope.CohortLabel != "" {
		return nil, fmt.Errorf("%w: cohort_label is not supported for completion listings", ErrInvalidScope)
	}
	return s.data.CompletionRows(ctx, dim, value, start, end)
}

// CompletionByCohort rolls up fully-complete participants per cohort and
// survey within one program.
func (s *Service) CompletionByCohort(ctx context.Context, programLabel string) ([]v1.CohortCompletion, error) {
	if programLabel == "" {
		return nil, fmt.Errorf("%w: program_label is required", ErrInvalidScope)
	}
	return s.data.CompletionByCohort(ctx, programLabel)
}

// ListByParticipant fetches one participant's data restricted to the fixed
// key whitelist, optionally scoped to one project cohort.
func (s *Service) ListByParticipant(ctx context.Context, participantID, projectCohortID string) ([]*v1.ParticipantDatum, error) {
	if participantID == "" {
		return nil, fmt.Errorf("%w: participant_id is required", ErrInvalidDatum)
	}
	return s.data.ListByParticipant(ctx, participantID, projectCohortID, participantDataKeys)
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
