package participation

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	v1 "github.com/catalyst-ed/project-catalyst/internal/api/v1"
	"golang.org/x/sync/errgroup"
)

// invalidateProgressWindows removes exactly the cached windows a progress
// write made stale. Four cache keys can hold reports covering the write: the
// single-scope entries for its survey and project cohort, and the batch
// entries addressed by project cohort id and by code. Within each entry,
// only windows whose [start, end) contains the write's created timestamp
// are dropped; everything else keeps serving from cache.
//
// The four keys are independent, so they are processed concurrently. Cache
// failures here degrade precision, never correctness: an entry that could
// not be cleaned will be recomputed or re-invalidated on a later write, and
// the upsert itself has already committed.
func (s *Service) invalidateProgressWindows(ctx context.Context, d *v1.ParticipantDatum) {
	keys := []string{
		entityKey(d.SurveyID),
		entityKey(d.ProjectCohortID),
		batchKey(d.ProjectCohortID),
		batchKey(d.Code),
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, key := range keys {
		key := key
		g.Go(func() error {
			return s.invalidateEntry(gctx, key, d.Created)
		})
	}
	if err := g.Wait(); err != nil {
		slog.Warn("[Participation] Cache invalidation degraded",
			"participant_id", d.ParticipantID,
			"survey_id", d.SurveyID,
			"error", err)
	}
}

// invalidateEntry drops every window in one cache entry that contains the
// write timestamp, writing the entry back only when something was removed.
func (s *Service) invalidateEntry(ctx context.Context, key string, written time.Time) error {
	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		return err
	}
	if raw == nil {
		return nil
	}

	// Decode windows only; values pass through opaquely so one routine
	// covers both the single-scope and batch entry shapes.
	var entry map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entry); err != nil {
		return s.cache.Delete(ctx, key)
	}

	removed := false
	for window := range entry {
		if windowContains(window, written) {
			delete(entry, window)
			removed = true
		}
	}
	if !removed {
		return nil
	}

	if len(entry) == 0 {
		return s.cache.Delete(ctx, key)
	}

	buf, err := json.Marshal(entry)
	if err != nil {
		return s.cache.Delete(ctx, key)
	}
	return s.cache.Set(ctx, key, buf)
}
