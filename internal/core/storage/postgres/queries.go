package postgres

// SQL for participant identity and participant data operations.
//
// Window filters use the ($n::timestamptz IS NULL OR ...) pattern so every
// query stays a single constant: a nil bound disables its clause instead of
// requiring per-call SQL assembly.

const (
	// queryInsertParticipant creates a participant idempotently.
	// ON CONFLICT DO NOTHING returns no rows (sql.ErrNoRows) when the
	// (name, organization_id) identity already exists.
	queryInsertParticipant = `
		INSERT INTO participant (uid, short_uid, created, name, organization_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name, organization_id) DO NOTHING
		RETURNING uid
	`

	queryGetParticipantByIdentity = `
		SELECT uid, created, name, organization_id
		FROM participant
		WHERE name = $1 AND organization_id = $2
	`

	// queryInsertDatum appends one fact. ON CONFLICT DO NOTHING returns no
	// rows for a (participant_id, survey_id, key) that already has a row;
	// the upsert guard then switches to the update path.
	queryInsertDatum = `
		INSERT INTO participant_data (
			uid, short_uid, created, modified, key, value,
			participant_id, program_label, project_id, cohort_label,
			project_cohort_id, code, survey_id, survey_ordinal, testing
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (participant_id, survey_id, key) DO NOTHING
		RETURNING uid
	`

	queryGetDatum = `
		SELECT
			uid, created, modified, key, value,
			participant_id, program_label, project_id, cohort_label,
			project_cohort_id, code, survey_id, survey_ordinal, testing
		FROM participant_data
		WHERE participant_id = $1 AND survey_id = $2 AND key = $3
	`

	// queryUpdateDatumValue refreshes the mutable fields of one fact in
	// place. UID and created are immutable so retries converge on one row.
	queryUpdateDatumValue = `
		UPDATE participant_data
		SET value = $1, modified = $2
		WHERE uid = $3
	`

	queryListByParticipant = `
		SELECT
			uid, created, modified, key, value,
			participant_id, program_label, project_id, cohort_label,
			project_cohort_id, code, survey_id, survey_ordinal, testing
		FROM participant_data
		WHERE participant_id = $1
		  AND key = ANY($2)
		  AND ($3 = '' OR project_cohort_id = $3)
		ORDER BY created ASC
	`

	// Progress count queries, one per scope dimension. All filter testing
	// rows out and order by survey position then numeric progress value
	// ("2" sorts before "100").
	queryCountProgressByProgram = `
		SELECT survey_ordinal, value, COUNT(*) AS n
		FROM participant_data
		WHERE key = 'progress'
		  AND testing = FALSE
		  AND program_label = $1
		  AND ($2 = '' OR cohort_label = $2)
		  AND ($3::timestamptz IS NULL OR modified >= $3)
		  AND ($4::timestamptz IS NULL OR modified < $4)
		GROUP BY survey_ordinal, value
		ORDER BY survey_ordinal ASC, (value::integer) ASC
	`

	queryCountProgressByProjectCohort = `
		SELECT survey_ordinal, value, COUNT(*) AS n
		FROM participant_data
		WHERE key = 'progress'
		  AND testing = FALSE
		  AND project_cohort_id = $1
		  AND ($2::timestamptz IS NULL OR modified >= $2)
		  AND ($3::timestamptz IS NULL OR modified < $3)
		GROUP BY survey_ordinal, value
		ORDER BY survey_ordinal ASC, (value::integer) ASC
	`

	queryCountProgressBySurvey = `
		SELECT survey_ordinal, value, COUNT(*) AS n
		FROM participant_data
		WHERE key = 'progress'
		  AND testing = FALSE
		  AND survey_id = $1
		  AND ($2::timestamptz IS NULL OR modified >= $2)
		  AND ($3::timestamptz IS NULL OR modified < $3)
		GROUP BY survey_ordinal, value
		ORDER BY survey_ordinal ASC, (value::integer) ASC
	`

	// Multi-entity variants return the owning identifiers with every row so
	// the batch read path can redistribute results per entity after a single
	// round-trip covering all ids.
	queryCountProgressByProjectCohortIDs = `
		SELECT project_cohort_id, code, survey_ordinal, value, COUNT(*) AS n
		FROM participant_data
		WHERE key = 'progress'
		  AND testing = FALSE
		  AND project_cohort_id = ANY($1)
		  AND ($2::timestamptz IS NULL OR modified >= $2)
		  AND ($3::timestamptz IS NULL OR modified < $3)
		GROUP BY project_cohort_id, code, survey_ordinal, value
		ORDER BY project_cohort_id ASC, survey_ordinal ASC, (value::integer) ASC
	`

	queryCountProgressByCodes = `
		SELECT project_cohort_id, code, survey_ordinal, value, COUNT(*) AS n
		FROM participant_data
		WHERE key = 'progress'
		  AND testing = FALSE
		  AND code = ANY($1)
		  AND ($2::timestamptz IS NULL OR modified >= $2)
		  AND ($3::timestamptz IS NULL OR modified < $3)
		GROUP BY project_cohort_id, code, survey_ordinal, value
		ORDER BY code ASC, survey_ordinal ASC, (value::integer) ASC
	`

	// Completion queries join participant name tokens so callers see
	// pseudonymous identities, never free-text survey answers.
	queryCompletionRowsByProgram = `
		SELECT p.name, pd.value, pd.survey_ordinal
		FROM participant_data pd
		JOIN participant p ON p.uid = pd.participant_id
		WHERE pd.key = 'progress'
		  AND pd.testing = FALSE
		  AND pd.program_label = $1
		  AND ($2::timestamptz IS NULL OR pd.modified >= $2)
		  AND ($3::timestamptz IS NULL OR pd.modified < $3)
		ORDER BY pd.survey_ordinal ASC, (pd.value::integer) ASC, p.name ASC
	`

	queryCompletionRowsByProjectCohort = `
		SELECT p.name, pd.value, pd.survey_ordinal
		FROM participant_data pd
		JOIN participant p ON p.uid = pd.participant_id
		WHERE pd.key = 'progress'
		  AND pd.testing = FALSE
		  AND pd.project_cohort_id = $1
		  AND ($2::timestamptz IS NULL OR pd.modified >= $2)
		  AND ($3::timestamptz IS NULL OR pd.modified < $3)
		ORDER BY pd.survey_ordinal ASC, (pd.value::integer) ASC, p.name ASC
	`

	queryCompletionRowsBySurvey = `
		SELECT p.name, pd.value, pd.survey_ordinal
		FROM participant_data pd
		JOIN participant p ON p.uid = pd.participant_id
		WHERE pd.key = 'progress'
		  AND pd.testing = FALSE
		  AND pd.survey_id = $1
		  AND ($2::timestamptz IS NULL OR pd.modified >= $2)
		  AND ($3::timestamptz IS NULL OR pd.modified < $3)
		ORDER BY pd.survey_ordinal ASC, (pd.value::integer) ASC, p.name ASC
	`

	queryCompletionByCohort = `
		SELECT cohort_label, survey_ordinal, COUNT(*) AS complete_count
		FROM participant_data
		WHERE key = 'progress'
		  AND testing = FALSE
		  AND value = '100'
		  AND program_label = $1
		GROUP BY cohort_label, survey_ordinal
		ORDER BY cohort_label ASC, survey_ordinal ASC
	`
)
