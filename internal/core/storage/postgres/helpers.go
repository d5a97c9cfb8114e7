package postgres

import (
	"database/sql"
	"fmt"
	"strings"

	v1 "github.com/catalyst-ed/project-catalyst/internal/api/v1"
)

type scanner interface {
	Scan(dest ...interface{}) error
}

// scanDatumRow scans a participant_data row into a ParticipantDatum.
// Compatible with both sql.Row (single) and sql.Rows (multiple).
func scanDatumRow(row scanner) (*v1.ParticipantDatum, error) {
	var d v1.ParticipantDatum
	var projectID, cohortLabel, surveyID sql.NullString
	var surveyOrdinal sql.NullInt64

	err := row.Scan(
		&d.UID,
		&d.Created,
		&d.Modified,
		&d.Key,
		&d.Value,
		&d.ParticipantID,
		&d.ProgramLabel,
		&projectID,
		&cohortLabel,
		&d.ProjectCohortID,
		&d.Code,
		&surveyID,
		&surveyOrdinal,
		&d.Testing,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan participant_data row: %w", err)
	}

	d.ProjectID = projectID.String
	d.CohortLabel = cohortLabel.String
	d.SurveyID = surveyID.String
	d.SurveyOrdinal = int(surveyOrdinal.Int64)

	return &d, nil
}

// nullIfEmpty maps "" to SQL NULL for nullable text columns.
func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// shortUID derives the human-friendly short form stored alongside a UID.
func shortUID(uid string) string {
	if i := strings.IndexByte(uid, '-'); i > 0 {
		return uid[:i]
	}
	return uid
}
