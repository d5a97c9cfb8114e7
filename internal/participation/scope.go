package participation

import (
	"errors"
	"fmt"

	"github.com/catalyst-ed/project-catalyst/internal/core/storage"
)

// ErrInvalidScope marks scope validation errors that should return HTTP 400.
var ErrInvalidScope = errors.New("invalid participation scope")

// Scope restricts a participation query to exactly one dimension: a program,
// a project cohort, or a survey. CohortLabel optionally narrows
// program-scoped queries and is invalid with any other dimension.
//
// Scope replaces ad-hoc per-call SQL assembly: Resolve enumerates the
// exactly-one-dimension rule once, and the store only ever sees a validated
// (dimension, value) pair.
type Scope struct {
	ProgramLabel    string
	ProjectCohortID string
	SurveyID        string
	CohortLabel     string
}

// Resolve validates the scope and returns the dimension and value to query.
func (s Scope) Resolve() (storage.ScopeDimension, string, error) {
	var dim storage.ScopeDimension
	var value string
	set := 0

	if s.ProgramLabel != "" {
		dim, value = storage.ByProgramLabel, s.ProgramLabel
		set++
	}
	if s.ProjectCohortID != "" {
		dim, value = storage.ByProjectCohortID, s.ProjectCohortID
		set++
	}
	if s.SurveyID != "" {
		dim, value = storage.BySurveyID, s.SurveyID
		set++
	}

	if set == 0 {
		return "", "", fmt.Errorf("%w: one of program_label, project_cohort_id, survey_id is required", ErrInvalidScope)
	}
	if set > 1 {
		return "", "", fmt.Errorf("%w: program_label, project_cohort_id and survey_id are mutually exclusive", ErrInvalidScope)
	}
	if s.CohortLabel != "" && dim != storage.ByProgramLabel {
		return "", "", fmt.Errorf("%w: cohort_label requires program_label", ErrInvalidScope)
	}

	return dim, value, nil
}

// cacheable reports whether this scope maps to a cache entry. Only plain
// project-cohort and survey scopes are cached; program scopes (with or
// without a cohort narrowing) always hit SQL.
func (s Scope) cacheable() bool {
	if s.CohortLabel != "" {
		return false
	}
	return s.ProjectCohortID != "" || s.SurveyID != ""
}
