package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/faxretriever/broker/internal/apperrors"
	"github.com/faxretriever/broker/internal/models"
)

type AssignmentRepo struct {
	DB DBTX
}

// The claim is the hot invariant of the whole system: at most one device per
// fax number. The insert-or-nothing form makes postgres the arbiter, so two
// racing claims can never both see "unassigned".
const claimAssignment = `-- name: ClaimAssignment
WITH claimed AS (
    INSERT INTO retriever_assignments (client_id, fax_number, device_id)
    VALUES ($1, $2, $3)
    ON CONFLICT (client_id, fax_number) DO NOTHING
    RETURNING 1
)
UPDATE clients
SET assignments_version = assignments_version + 1
WHERE id = $1 AND EXISTS (SELECT 1 FROM claimed)
`

func (r *AssignmentRepo) Claim(ctx context.Context, clientID uuid.UUID, number string, deviceID string) (bool, error) {
	tag, err := r.DB.Exec(ctx, claimAssignment, clientID, number, deviceID)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

const assignmentOwner = `-- name: AssignmentOwner
SELECT device_id
FROM retriever_assignments
WHERE client_id = $1 AND fax_number = $2
`

func (r *AssignmentRepo) Owner(ctx context.Context, clientID uuid.UUID, number string) (string, error) {
	rows, _ := r.DB.Query(ctx, assignmentOwner, clientID, number)
	owner, err := pgx.CollectOneRow(rows, pgx.RowTo[string])

	switch {
	case err == nil:
		return owner, nil
	case errors.Is(err, pgx.ErrNoRows):
		return "", nil
	default:
		return "", fmt.Errorf("db error: %w", err)
	}
}

const listAssignments = `-- name: ListAssignments
SELECT client_id, fax_number, device_id, assigned_at
FROM retriever_assignments
WHERE client_id = $1
ORDER BY fax_number
`

func (r *AssignmentRepo) ListByClient(ctx context.Context, clientID uuid.UUID) ([]models.Assignment, error) {
	rows, _ := r.DB.Query(ctx, listAssignments, clientID)
	assignments, err := pgx.CollectRows(rows, rowToAssignment)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return assignments, nil
}

const unclaimAssignment = `-- name: UnclaimAssignment
WITH released AS (
    DELETE FROM retriever_assignments
    WHERE client_id = $1 AND fax_number = $2 AND device_id = $3
    RETURNING 1
)
UPDATE clients
SET assignments_version = assignments_version + 1
WHERE id = $1 AND EXISTS (SELECT 1 FROM released)
`

func (r *AssignmentRepo) Unclaim(ctx context.Context, clientID uuid.UUID, number string, deviceID string) (bool, error) {
	tag, err := r.DB.Exec(ctx, unclaimAssignment, clientID, number, deviceID)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

const unclaimAllForDevice = `-- name: UnclaimAllForDevice
WITH released AS (
    DELETE FROM retriever_assignments
    WHERE client_id = $1 AND device_id = $2
    RETURNING fax_number
),
bumped AS (
    UPDATE clients
    SET assignments_version = assignments_version + 1
    WHERE id = $1 AND EXISTS (SELECT 1 FROM released)
)
SELECT fax_number FROM released ORDER BY fax_number
`

func (r *AssignmentRepo) UnclaimAll(ctx context.Context, clientID uuid.UUID, deviceID string) ([]string, error) {
	rows, _ := r.DB.Query(ctx, unclaimAllForDevice, clientID, deviceID)
	numbers, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return numbers, nil
}

const clearAssignment = `-- name: ClearAssignment
WITH cleared AS (
    DELETE FROM retriever_assignments
    WHERE client_id = $1 AND fax_number = $2
    RETURNING 1
)
UPDATE clients
SET assignments_version = assignments_version + 1
WHERE id = $1 AND EXISTS (SELECT 1 FROM cleared)
`

func (r *AssignmentRepo) Clear(ctx context.Context, clientID uuid.UUID, number string) (bool, error) {
	tag, err := r.DB.Exec(ctx, clearAssignment, clientID, number)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

const assignmentsVersion = `-- name: AssignmentsVersion
SELECT assignments_version
FROM clients
WHERE id = $1
`

func (r *AssignmentRepo) Version(ctx context.Context, clientID uuid.UUID) (int64, error) {
	rows, _ := r.DB.Query(ctx, assignmentsVersion, clientID)
	version, err := pgx.CollectOneRow(rows, pgx.RowTo[int64])

	switch {
	case err == nil:
		return version, nil
	case errors.Is(err, pgx.ErrNoRows):
		return 0, fmt.Errorf("repo error: %w", apperrors.ErrUnknownClient)
	default:
		return 0, fmt.Errorf("db error: %w", err)
	}
}

func rowToAssignment(row pgx.CollectableRow) (models.Assignment, error) {
	var a models.Assignment
	err := row.Scan(&a.ClientID, &a.FaxNumber, &a.DeviceID, &a.AssignedAt)
	return a, err
}
