package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/faxretriever/broker/internal/apperrors"
	"github.com/faxretriever/broker/internal/models"
)

type ClientRepo struct {
	DB DBTX
}

const clientColumns = `id, fax_user, auth_token, reseller_id, fax_numbers, active, created_at, last_seen_at`

const createClient = `-- name: CreateClient
INSERT INTO clients (id, fax_user, auth_token, reseller_id, fax_numbers, active)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + clientColumns

func (r *ClientRepo) Create(ctx context.Context, client models.Client) (models.Client, error) {
	id := client.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	rows, _ := r.DB.Query(ctx, createClient,
		id, models.NormalizeFaxUser(client.FaxUser), client.AuthToken,
		client.ResellerID, client.FaxNumbers, client.Active,
	)
	created, err := pgx.CollectOneRow(rows, rowToClient)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return created, fmt.Errorf("repo error: %w", apperrors.ErrClientAlreadyExists)
		}
		return created, fmt.Errorf("db error: %w", err)
	}

	return created, nil
}

const getClientByID = `-- name: GetClientByID
SELECT ` + clientColumns + `
FROM clients
WHERE id = $1
`

func (r *ClientRepo) GetByID(ctx context.Context, id uuid.UUID) (models.Client, error) {
	rows, _ := r.DB.Query(ctx, getClientByID, id)
	return collectClient(rows)
}

const getClientByFaxUser = `-- name: GetClientByFaxUser
SELECT ` + clientColumns + `
FROM clients
WHERE fax_user = $1
`

func (r *ClientRepo) GetByFaxUser(ctx context.Context, faxUser string) (models.Client, error) {
	rows, _ := r.DB.Query(ctx, getClientByFaxUser, models.NormalizeFaxUser(faxUser))
	return collectClient(rows)
}

const listClients = `-- name: ListClients
SELECT ` + clientColumns + `
FROM clients
ORDER BY fax_user
`

func (r *ClientRepo) List(ctx context.Context) ([]models.Client, error) {
	rows, _ := r.DB.Query(ctx, listClients)
	clients, err := pgx.CollectRows(rows, rowToClient)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return clients, nil
}

const setClientActive = `-- name: SetClientActive
UPDATE clients
SET active = $2
WHERE id = $1
`

func (r *ClientRepo) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	return r.execOnClient(ctx, setClientActive, id, active)
}

const setClientAuthToken = `-- name: SetClientAuthToken
UPDATE clients
SET auth_token = $2
WHERE id = $1
`

func (r *ClientRepo) SetAuthToken(ctx context.Context, id uuid.UUID, authToken string) error {
	return r.execOnClient(ctx, setClientAuthToken, id, authToken)
}

const setClientFaxNumbers = `-- name: SetClientFaxNumbers
UPDATE clients
SET fax_numbers = $2
WHERE id = $1
`

func (r *ClientRepo) SetFaxNumbers(ctx context.Context, id uuid.UUID, numbers []string) error {
	return r.execOnClient(ctx, setClientFaxNumbers, id, numbers)
}

const registerDevice = `-- name: RegisterDevice
WITH touched AS (
    UPDATE clients SET last_seen_at = now()
    WHERE id = $1
    RETURNING id
)
INSERT INTO client_devices (client_id, device_id)
SELECT id, $2 FROM touched
ON CONFLICT (client_id, device_id)
DO UPDATE SET last_seen_at = now()
`

// RegisterDevice records the device in the client's known set and bumps the
// client's last-seen timestamp in one statement.
func (r *ClientRepo) RegisterDevice(ctx context.Context, id uuid.UUID, deviceID string) error {
	tag, err := r.DB.Exec(ctx, registerDevice, id, deviceID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repo error: %w", apperrors.ErrUnknownClient)
	}
	return nil
}

const listDevices = `-- name: ListDevices
SELECT device_id
FROM client_devices
WHERE client_id = $1
ORDER BY last_seen_at DESC
`

func (r *ClientRepo) ListDevices(ctx context.Context, id uuid.UUID) ([]string, error) {
	rows, _ := r.DB.Query(ctx, listDevices, id)
	devices, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return devices, nil
}

func (r *ClientRepo) execOnClient(ctx context.Context, sql string, id uuid.UUID, arg any) error {
	tag, err := r.DB.Exec(ctx, sql, id, arg)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repo error: %w", apperrors.ErrUnknownClient)
	}
	return nil
}

func collectClient(rows pgx.Rows) (models.Client, error) {
	client, err := pgx.CollectOneRow(rows, rowToClient)

	switch {
	case err == nil:
		return client, nil
	case errors.Is(err, pgx.ErrNoRows):
		return client, fmt.Errorf("repo error: %w", apperrors.ErrUnknownClient)
	default:
		return client, fmt.Errorf("db error: %w", err)
	}
}

func rowToClient(row pgx.CollectableRow) (models.Client, error) {
	var c models.Client
	err := row.Scan(&c.ID, &c.FaxUser, &c.AuthToken, &c.ResellerID, &c.FaxNumbers, &c.Active, &c.CreatedAt, &c.LastSeenAt)
	return c, err
}
