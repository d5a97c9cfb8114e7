package storage

import (
	"context"
	"errors"
	"time"

	v1 "github.com/catalyst-ed/project-catalyst/internal/api/v1"
)

// ErrDuplicate is returned when an insert hits a unique constraint. The
// upsert guard recovers from it by fetching the existing row; it is never
// surfaced to callers.
var ErrDuplicate = errors.New("row already exists")

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("row not found")

// ScopeDimension selects which column a participation query is restricted to.
// Exactly one dimension applies per query; the participation package enforces
// that rule before a query reaches the store.
type ScopeDimension string

const (
	ByProgramLabel    ScopeDimension = "program_label"
	ByProjectCohortID ScopeDimension = "project_cohort_id"
	BySurveyID        ScopeDimension = "survey_id"
)

// ParticipantStore persists participant identity rows.
type ParticipantStore interface {
	// GetOrCreateParticipant resolves a candidate to the one row identified
	// by (name, organization_id), creating it on first contact. A duplicate
	// creation attempt returns the existing row, never a second identity.
	GetOrCreateParticipant(ctx context.Context, p *v1.Participant) (*v1.Participant, error)
}

// DatumStore persists and aggregates participant data rows.
type DatumStore interface {
	// InsertDatum appends a new datum. Returns ErrDuplicate when a row with
	// the same (participant_id, survey_id, key) already exists.
	InsertDatum(ctx context.Context, d *v1.ParticipantDatum) error

	// GetDatum fetches the current row for one fact. Returns ErrNotFound
	// when the fact has never been reported.
	GetDatum(ctx context.Context, participantID, surveyID, key string) (*v1.ParticipantDatum, error)

	// UpdateDatumValue overwrites the mutable fields of an existing row,
	// preserving its UID and Created timestamp.
	UpdateDatumValue(ctx context.Context, uid, value string, modified time.Time) error

	// ListByParticipant fetches a participant's data restricted to the given
	// key whitelist, optionally scoped to one project cohort.
	ListByParticipant(ctx context.Context, participantID, projectCohortID string, keys []string) ([]*v1.ParticipantDatum, error)

	// CountProgress groups non-testing progress rows for one scope dimension
	// by (survey_ordinal, value), ordered by survey_ordinal then numeric
	// value. cohortLabel narrows program-scoped queries only. start/end
	// filter on modified; nil means unbounded.
	CountProgress(ctx context.Context, dim ScopeDimension, value, cohortLabel string, start, end *time.Time) ([]v1.ParticipationCount, error)

	// CountProgressByEntities is the multi-entity form of CountProgress:
	// one query covering all ids, each result row tagged with its owning
	// project_cohort_id and code. usingCodes switches the IN-filter from
	// project_cohort_id to code.
	CountProgressByEntities(ctx context.Context, ids []string, usingCodes bool, start, end *time.Time) ([]v1.EntityParticipationCount, error)

	// CompletionRows lists pseudonymous per-participant progress for one
	// scope dimension, joining participant name tokens.
	CompletionRows(ctx context.Context, dim ScopeDimension, value string, start, end *time.Time) ([]v1.CompletionRow, error)

	// CompletionByCohort counts fully-complete rows per (cohort_label,
	// survey_ordinal) within one program.
	CompletionByCohort(ctx context.Context, programLabel string) ([]v1.CohortCompletion, error)
}
