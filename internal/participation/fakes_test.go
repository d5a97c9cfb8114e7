package participation

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	v1 "github.com/catalyst-ed/project-catalyst/internal/api/v1"
	"github.com/catalyst-ed/project-catalyst/internal/core/storage"
)

// fakeDatumStore is an in-memory storage.DatumStore that also counts the
// queries it serves, so tests can assert which reads hit SQL and which were
// answered from cache.
type fakeDatumStore struct {
	mu    sync.Mutex
	rows  map[string]*v1.ParticipantDatum
	names map[string]string

	countQueries int
	batchQueries [][]string
}

func newFakeDatumStore() *fakeDatumStore {
	return &fakeDatumStore{
		rows:  make(map[string]*v1.ParticipantDatum),
		names: make(map[string]string),
	}
}

func factKey(participantID, surveyID, key string) string {
	return participantID + "|" + surveyID + "|" + key
}

func (f *fakeDatumStore) InsertDatum(_ context.Context, d *v1.ParticipantDatum) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	k := factKey(d.ParticipantID, d.SurveyID, d.Key)
	if _, exists := f.rows[k]; exists {
		return storage.ErrDuplicate
	}
	copied := *d
	f.rows[k] = &copied
	return nil
}

func (f *fakeDatumStore) GetDatum(_ context.Context, participantID, surveyID, key string) (*v1.ParticipantDatum, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	row, exists := f.rows[factKey(participantID, surveyID, key)]
	if !exists {
		return nil, storage.ErrNotFound
	}
	copied := *row
	return &copied, nil
}

func (f *fakeDatumStore) UpdateDatumValue(_ context.Context, uid, value string, modified time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, row := range f.rows {
		if row.UID == uid {
			row.Value = value
			row.Modified = modified
			return nil
		}
	}
	return storage.ErrNotFound
}

func (f *fakeDatumStore) ListByParticipant(_ context.Context, participantID, projectCohortID string, keys []string) ([]*v1.ParticipantDatum, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	allowed := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		allowed[k] = struct{}{}
	}

	var result []*v1.ParticipantDatum
	for _, row := range f.rows {
		if row.ParticipantID != participantID {
			continue
		}
		if projectCohortID != "" && row.ProjectCohortID != projectCohortID {
			continue
		}
		if _, ok := allowed[row.Key]; !ok {
			continue
		}
		copied := *row
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Created.Before(result[j].Created) })
	return result, nil
}

func (f *fakeDatumStore) CountProgress(
	_ context.Context,
	dim storage.ScopeDimension,
	value, cohortLabel string,
	start, end *time.Time,
) ([]v1.ParticipationCount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.countQueries++

	grouped := make(map[[2]string]int)
	for _, row := range f.rows {
		if !f.progressRowMatches(row, start, end) {
			continue
		}
		switch dim {
		case storage.ByProgramLabel:
			if row.ProgramLabel != value {
				continue
			}
			if cohortLabel != "" && row.CohortLabel != cohortLabel {
				continue
			}
		case storage.ByProjectCohortID:
			if row.ProjectCohortID != value {
				continue
			}
		case storage.BySurveyID:
			if row.SurveyID != value {
				continue
			}
		}
		grouped[[2]string{strconv.Itoa(row.SurveyOrdinal), row.Value}]++
	}

	var counts []v1.ParticipationCount
	for key, n := range grouped {
		ordinal, _ := strconv.Atoi(key[0])
		counts = append(counts, v1.ParticipationCount{Value: key[1], SurveyOrdinal: ordinal, N: n})
	}
	sortCounts(counts)
	return counts, nil
}

func (f *fakeDatumStore) CountProgressByEntities(
	_ context.Context,
	ids []string,
	usingCodes bool,
	start, end *time.Time,
) ([]v1.EntityParticipationCount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.batchQueries = append(f.batchQueries, append([]string(nil), ids...))

	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}

	type groupKey struct {
		pcid    string
		code    string
		ordinal int
		value   string
	}
	grouped := make(map[groupKey]int)
	for _, row := range f.rows {
		if !f.progressRowMatches(row, start, end) {
			continue
		}
		owner := row.ProjectCohortID
		if usingCodes {
			owner = row.Code
		}
		if _, ok := wanted[owner]; !ok {
			continue
		}
		grouped[groupKey{row.ProjectCohortID, row.Code, row.SurveyOrdinal, row.Value}]++
	}

	var counts []v1.EntityParticipationCount
	for key, n := range grouped {
		counts = append(counts, v1.EntityParticipationCount{
			ProjectCohortID: key.pcid,
			Code:            key.code,
			Value:           key.value,
			SurveyOrdinal:   key.ordinal,
			N:               n,
		})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].ProjectCohortID != counts[j].ProjectCohortID {
			return counts[i].ProjectCohortID < counts[j].ProjectCohortID
		}
		if counts[i].SurveyOrdinal != counts[j].SurveyOrdinal {
			return counts[i].SurveyOrdinal < counts[j].SurveyOrdinal
		}
		vi, _ := strconv.Atoi(counts[i].Value)
		vj, _ := strconv.Atoi(counts[j].Value)
		return vi < vj
	})
	return counts, nil
}

func (f *fakeDatumStore) CompletionRows(
	_ context.Context,
	dim storage.ScopeDimension,
	value string,
	start, end *time.Time,
) ([]v1.CompletionRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result []v1.CompletionRow
	for _, row := range f.rows {
		if !f.progressRowMatches(row, start, end) {
			continue
		}
		switch dim {
		case storage.ByProgramLabel:
			if row.ProgramLabel != value {
				continue
			}
		case storage.ByProjectCohortID:
			if row.ProjectCohortID != value {
				continue
			}
		case storage.BySurveyID:
			if row.SurveyID != value {
				continue
			}
		}
		result = append(result, v1.CompletionRow{
			Token:           f.names[row.ParticipantID],
			PercentProgress: row.Value,
			SurveyOrdinal:   row.SurveyOrdinal,
		})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].SurveyOrdinal != result[j].SurveyOrdinal {
			return result[i].SurveyOrdinal < result[j].SurveyOrdinal
		}
		return result[i].Token < result[j].Token
	})
	return result, nil
}

func (f *fakeDatumStore) CompletionByCohort(_ context.Context, programLabel string) ([]v1.CohortCompletion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	grouped := make(map[[2]string]int)
	for _, row := range f.rows {
		if row.Key != v1.KeyProgress || row.Testing || row.ProgramLabel != programLabel {
			continue
		}
		if row.Value != v1.ProgressComplete {
			continue
		}
		grouped[[2]string{row.CohortLabel, strconv.Itoa(row.SurveyOrdinal)}]++
	}

	var result []v1.CohortCompletion
	for key, n := range grouped {
		ordinal, _ := strconv.Atoi(key[1])
		result = append(result, v1.CohortCompletion{CohortLabel: key[0], SurveyOrdinal: ordinal, CompleteCount: n})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CohortLabel != result[j].CohortLabel {
			return result[i].CohortLabel < result[j].CohortLabel
		}
		return result[i].SurveyOrdinal < result[j].SurveyOrdinal
	})
	return result, nil
}

func (f *fakeDatumStore) progressRowMatches(row *v1.ParticipantDatum, start, end *time.Time) bool {
	if row.Key != v1.KeyProgress || row.Testing {
		return false
	}
	if start != nil && row.Modified.Before(*start) {
		return false
	}
	if end != nil && !row.Modified.Before(*end) {
		return false
	}
	return true
}

// deleteAll removes every stored row, bypassing the service. Used to prove
// stale cached reports keep serving until an invalidating write.
func (f *fakeDatumStore) deleteAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = make(map[string]*v1.ParticipantDatum)
}

func sortCounts(counts []v1.ParticipationCount) {
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].SurveyOrdinal != counts[j].SurveyOrdinal {
			return counts[i].SurveyOrdinal < counts[j].SurveyOrdinal
		}
		vi, _ := strconv.Atoi(counts[i].Value)
		vj, _ := strconv.Atoi(counts[j].Value)
		return vi < vj
	})
}

// fakeParticipantStore is an in-memory storage.ParticipantStore.
type fakeParticipantStore struct {
	mu      sync.Mutex
	byIdent map[string]*v1.Participant
	creates int
}

func newFakeParticipantStore() *fakeParticipantStore {
	return &fakeParticipantStore{byIdent: make(map[string]*v1.Participant)}
}

func (f *fakeParticipantStore) GetOrCreateParticipant(_ context.Context, p *v1.Participant) (*v1.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ident := p.Name + "|" + p.OrganizationID
	if existing, ok := f.byIdent[ident]; ok {
		copied := *existing
		return &copied, nil
	}

	f.creates++
	copied := *p
	if copied.UID == "" {
		copied.UID = "Participant_" + strconv.Itoa(f.creates)
	}
	if copied.Created.IsZero() {
		copied.Created = time.Now().UTC()
	}
	f.byIdent[ident] = &copied
	result := copied
	return &result, nil
}

// failingCache errors on every operation, standing in for an unreachable
// cache backend.
type failingCache struct{}

var errCacheDown = errors.New("cache backend unreachable")

func (failingCache) Get(context.Context, string) ([]byte, error) { return nil, errCacheDown }
func (failingCache) Set(context.Context, string, []byte) error   { return errCacheDown }
func (failingCache) Delete(context.Context, string) error        { return errCacheDown }
func (failingCache) MultiGet(context.Context, []string) (map[string][]byte, error) {
	return nil, errCacheDown
}
func (failingCache) MultiSet(context.Context, map[string][]byte) error { return errCacheDown }
func (failingCache) MultiDelete(context.Context, []string) error       { return errCacheDown }
