package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/faxretriever/broker/internal/models"
)

type AuditRepo struct {
	DB DBTX
}

const insertAuditEvent = `-- name: InsertAuditEvent
INSERT INTO audit_events (ts, stream, event_type, tenant_id, device_id, actor, object, operation, note, payload, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
`

func (r *AuditRepo) Insert(ctx context.Context, event models.AuditEvent) error {
	_, err := r.DB.Exec(ctx, insertAuditEvent,
		event.Timestamp, event.Stream, event.EventType, event.TenantID,
		event.DeviceID, event.Actor, event.Object, event.Operation,
		event.Note, event.Payload, event.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const listRecentAuditEvents = `-- name: ListRecentAuditEvents
SELECT id, ts, stream, event_type, tenant_id, device_id, actor, object, operation, note, payload, expires_at
FROM audit_events
WHERE ($1 = '' OR tenant_id = $1) AND expires_at > now()
ORDER BY ts DESC
LIMIT $2
`

func (r *AuditRepo) ListRecent(ctx context.Context, tenantID string, limit int) ([]models.AuditEvent, error) {
	rows, _ := r.DB.Query(ctx, listRecentAuditEvents, tenantID, limit)
	events, err := pgx.CollectRows(rows, rowToAuditEvent)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return events, nil
}

func rowToAuditEvent(row pgx.CollectableRow) (models.AuditEvent, error) {
	var e models.AuditEvent
	err := row.Scan(
		&e.ID, &e.Timestamp, &e.Stream, &e.EventType, &e.TenantID,
		&e.DeviceID, &e.Actor, &e.Object, &e.Operation,
		&e.Note, &e.Payload, &e.ExpiresAt,
	)
	return e, err
}
