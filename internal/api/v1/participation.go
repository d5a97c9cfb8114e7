package v1

import (
	"fmt"
	"strconv"
	"time"
)

// Datum keys with system-defined semantics. Any other key is treated as a
// free-form survey-question tag and is excluded from the restricted read path.
const (
	KeyProgress  = "progress"
	KeyLink      = "link"
	KeyCondition = "condition"
	KeyConsent   = "consent"
)

// ProgressComplete is the terminal progress value. Writes of this value are
// always accepted, even after a numerically-higher bogus value slipped in.
const ProgressComplete = "100"

// Participant is the identity anchor for a person within one organization.
// Created once on first contact, never mutated, never deleted.
type Participant struct {
	// UID is the stable server-generated identifier.
	UID string `json:"uid"`

	// Name is an opaque token: a hash, roster id, or display name depending
	// on deployment. (name, organization_id) is unique.
	Name string `json:"name"`

	OrganizationID string    `json:"organization_id"`
	Created        time.Time `json:"created"`
}

// Validate ensures a candidate participant has the fields required for
// idempotent creation.
func (p *Participant) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	if p.OrganizationID == "" {
		return fmt.Errorf("organization_id is required")
	}
	return nil
}

// ParticipantDatum is one fact about one participant at one point in the
// survey flow. (participant_id, survey_id, key) is unique: only one current
// value per fact per participant per survey administration. Subsequent
// reports of the same fact update the row in place.
type ParticipantDatum struct {
	UID      string    `json:"uid"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`

	// Key is a short tag: "progress", "link", "condition", "consent", or an
	// arbitrary survey-question tag.
	Key string `json:"key"`

	// Value semantics depend on Key. For KeyProgress it is an integer string
	// in [0, 100] and never decreases across writes for the same
	// (participant_id, survey_id).
	Value string `json:"value"`

	ParticipantID string `json:"participant_id"`
	ProgramLabel  string `json:"program_label"`
	ProjectID     string `json:"project_id,omitempty"`
	CohortLabel   string `json:"cohort_label,omitempty"`

	ProjectCohortID string `json:"project_cohort_id"`

	// Code is the human-shareable alias for ProjectCohortID.
	Code string `json:"code"`

	// SurveyID may carry a free-form suffix (e.g. "Survey_123:cycle-1") to
	// support repeated administrations of the same survey.
	SurveyID string `json:"survey_id"`

	// SurveyOrdinal is the position of this survey within the program.
	SurveyOrdinal int `json:"survey_ordinal"`

	// Testing excludes the row from all aggregates.
	Testing bool `json:"testing"`
}

// Validate ensures the datum has all attributes the upsert path requires.
func (d *ParticipantDatum) Validate() error {
	if d.Key == "" {
		return fmt.Errorf("key is required")
	}
	if d.ParticipantID == "" {
		return fmt.Errorf("participant_id is required")
	}
	if d.ProgramLabel == "" {
		return fmt.Errorf("program_label is required")
	}
	if d.ProjectCohortID == "" {
		return fmt.Errorf("project_cohort_id is required")
	}
	if d.SurveyID == "" {
		return fmt.Errorf("survey_id is required")
	}
	return nil
}

// IsValidProgressValue reports whether value parses as an integer in [0, 100].
func IsValidProgressValue(value string) bool {
	n, err := strconv.Atoi(value)
	if err != nil {
		return false
	}
	return n >= 0 && n <= 100
}

// ParticipationCount is one aggregated row of a participation report: how
// many non-testing participants reported Value at SurveyOrdinal.
type ParticipationCount struct {
	Value         string `json:"value"`
	SurveyOrdinal int    `json:"survey_ordinal"`
	N             int    `json:"n"`
}

// EntityParticipationCount is a ParticipationCount tagged with the owning
// entity, so multi-entity query results can be redistributed per caller.
type EntityParticipationCount struct {
	ProjectCohortID string `json:"project_cohort_id"`
	Code            string `json:"code"`
	Value           string `json:"value"`
	SurveyOrdinal   int    `json:"survey_ordinal"`
	N               int    `json:"n"`
}

// CompletionRow identifies one participant's progress pseudonymously via the
// participant's opaque name token.
type CompletionRow struct {
	Token           string `json:"token"`
	PercentProgress string `json:"percent_progress"`
	SurveyOrdinal   int    `json:"survey_ordinal"`
}

// CohortCompletion counts fully-complete participants per cohort and survey.
type CohortCompletion struct {
	CohortLabel   string `json:"cohort_label"`
	SurveyOrdinal int    `json:"survey_ordinal"`
	CompleteCount int    `json:"complete_count"`
}
