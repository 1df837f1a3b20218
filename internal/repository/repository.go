package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/faxretriever/broker/internal/models"
)

// Reseller repository interface
type ResellerRepo interface {
	// Create reseller record. Credentials are attached separately.
	Create(ctx context.Context, reseller models.Reseller) (models.Reseller, error)

	// Get reseller by id
	// If reseller not found must return apperrors.ErrResellerNotFound
	GetByID(ctx context.Context, id string) (models.Reseller, error)

	List(ctx context.Context) ([]models.Reseller, error)

	// Activate or deactivate; resellers are never hard-deleted
	SetActive(ctx context.Context, id string, active bool) error

	// Replace the sealed credential blob (create or rotate)
	SetCredentials(ctx context.Context, id string, blob models.SealedBlob) error

	// Replace the cached bearer token
	SaveBearer(ctx context.Context, id string, bearer models.CachedBearer) error

	// Active resellers with credentials whose cached bearer token is absent
	// or expires before the deadline
	ListRefreshCandidates(ctx context.Context, deadline time.Time) ([]models.Reseller, error)
}

// Client repository interface
type ClientRepo interface {
	// Create client
	// If a client with the fax user exists already has to return
	// apperrors.ErrClientAlreadyExists
	Create(ctx context.Context, client models.Client) (models.Client, error)

	// Get client by id or by normalized fax user
	// If client not found must return apperrors.ErrUnknownClient
	GetByID(ctx context.Context, id uuid.UUID) (models.Client, error)
	GetByFaxUser(ctx context.Context, faxUser string) (models.Client, error)

	List(ctx context.Context) ([]models.Client, error)

	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	SetAuthToken(ctx context.Context, id uuid.UUID, authToken string) error
	SetFaxNumbers(ctx context.Context, id uuid.UUID, numbers []string) error

	// Upsert the device into the client's known set and bump last-seen
	RegisterDevice(ctx context.Context, id uuid.UUID, deviceID string) error
	ListDevices(ctx context.Context, id uuid.UUID) ([]string, error)
}

// Assignment repository interface. All mutations must be atomic
// check-and-set operations: two racing claims for the same number must
// never both succeed.
type AssignmentRepo interface {
	// Claim the number for the device iff it is currently unassigned.
	// Returns true when the claim succeeded.
	Claim(ctx context.Context, clientID uuid.UUID, number string, deviceID string) (bool, error)

	// Current owner of the number, "" if unassigned
	Owner(ctx context.Context, clientID uuid.UUID, number string) (string, error)

	ListByClient(ctx context.Context, clientID uuid.UUID) ([]models.Assignment, error)

	// Release the number iff the device owns it
	Unclaim(ctx context.Context, clientID uuid.UUID, number string, deviceID string) (bool, error)

	// Release every number the device owns; returns the released numbers
	UnclaimAll(ctx context.Context, clientID uuid.UUID, deviceID string) ([]string, error)

	// Administrator override: force the entry back to unassigned
	Clear(ctx context.Context, clientID uuid.UUID, number string) (bool, error)

	// Monotonic per-client version, incremented on every successful mutation
	Version(ctx context.Context, clientID uuid.UUID) (int64, error)
}

// Audit repository interface
type AuditRepo interface {
	// Append one immutable event
	Insert(ctx context.Context, event models.AuditEvent) error

	// Recent events for a tenant, newest first
	ListRecent(ctx context.Context, tenantID string, limit int) ([]models.AuditEvent, error)
}

// Storage aggregates the repositories and provides transactions
type Storage interface {
	Resellers() ResellerRepo
	Clients() ClientRepo
	Assignments() AssignmentRepo
	Audit() AuditRepo

	// Run fn within a database transaction
	InTx(ctx context.Context, fn func(Storage) error) error
}
