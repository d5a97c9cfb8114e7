package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	v1 "github.com/catalyst-ed/project-catalyst/internal/api/v1"
	"github.com/google/uuid"
)

// ParticipantAdapter implements storage.ParticipantStore for PostgreSQL,
// sharing the connection owned by Adapter.
type ParticipantAdapter struct {
	db *sql.DB
}

// NewParticipantAdapter creates a new ParticipantAdapter sharing the given connection.
func NewParticipantAdapter(db *sql.DB) *ParticipantAdapter {
	return &ParticipantAdapter{db: db}
}

// GetOrCreateParticipant resolves a candidate to the one identity row keyed
// by (name, organization_id). Creation is append-only: a duplicate attempt
// falls through to the existing row, never a second identity.
func (a *ParticipantAdapter) GetOrCreateParticipant(ctx context.Context, p *v1.Participant) (*v1.Participant, error) {
	candidate := *p
	if candidate.UID == "" {
		candidate.UID = uuid.New().String()
	}
	if candidate.Created.IsZero() {
		candidate.Created = time.Now().UTC()
	}

	var uid string
	err := a.db.QueryRowContext(ctx, queryInsertParticipant,
		candidate.UID,
		shortUID(candidate.UID),
		candidate.Created,
		candidate.Name,
		candidate.OrganizationID,
	).Scan(&uid)

	if err == nil {
		slog.Debug("[Postgres] Created participant",
			"uid", uid,
			"organization_id", candidate.OrganizationID)
		candidate.UID = uid
		return &candidate, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to insert participant: %w", err)
	}

	// ON CONFLICT DO NOTHING returned no rows: the identity already exists.
	var existing v1.Participant
	err = a.db.QueryRowContext(ctx, queryGetParticipantByIdentity,
		candidate.Name, candidate.OrganizationID,
	).Scan(&existing.UID, &existing.Created, &existing.Name, &existing.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch existing participant: %w", err)
	}

	return &existing, nil
}
