// Package audit provides the append-only access/audit trail every broker
// component reports through. Recording is fire-and-forget: a full buffer or
// a failed write falls back to the process logger and never fails the
// caller's authentication or token operation.
package audit

import (
	"context"
	"time"

	"github.com/faxretriever/broker/internal/logger"
	"github.com/faxretriever/broker/internal/models"
	"github.com/faxretriever/broker/internal/repository"
)

const (
	defaultBufferSize      = 256
	defaultWriteTimeout    = 5 * time.Second
	defaultAccessRetention = 90 * 24 * time.Hour
	defaultAuditRetention  = 365 * 24 * time.Hour

	// Actor recorded for broker-initiated events
	SystemActor = "broker"
)

// Event is what callers hand to Record. Stream defaults to the access
// stream; administrative and security-relevant mutations should set
// models.StreamAudit.
type Event struct {
	Type      string
	Stream    string
	TenantID  string
	DeviceID  string
	Actor     string
	Object    string
	Operation string
	Note      string
	Payload   map[string]any
}

type Config struct {
	// If not set than defaults are used
	BufferSize      int
	AccessRetention time.Duration
	AuditRetention  time.Duration
}

type Recorder struct {
	repo   repository.AuditRepo
	logger logger.Logger

	events chan models.AuditEvent

	accessRetention time.Duration
	auditRetention  time.Duration
}

func NewRecorder(cfg Config, repo repository.AuditRepo, l logger.Logger) *Recorder {
	if cfg.BufferSize == 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.AccessRetention == 0 {
		cfg.AccessRetention = defaultAccessRetention
	}
	if cfg.AuditRetention == 0 {
		cfg.AuditRetention = defaultAuditRetention
	}
	if l == nil {
		l = logger.NewNoOp()
	}

	return &Recorder{
		repo:            repo,
		logger:          l,
		events:          make(chan models.AuditEvent, cfg.BufferSize),
		accessRetention: cfg.AccessRetention,
		auditRetention:  cfg.AuditRetention,
	}
}

// Run drains the event buffer until ctx is cancelled, then flushes whatever
// is queued. The returned channel closes when the writer is done.
func (r *Recorder) Run(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})

	go func() {
		defer close(idleStopped)

		for {
			select {
			case <-ctx.Done():
				r.flush()
				return
			case event := <-r.events:
				r.write(event)
			}
		}
	}()

	return idleStopped
}

// Record queues one event. It never blocks: when the buffer is full the
// event goes to the fallback channel (the process log) instead.
func (r *Recorder) Record(_ context.Context, e Event) {
	event := r.toModel(e)

	select {
	case r.events <- event:
	default:
		r.fallback(event, "audit buffer full")
	}
}

// RecordAccess is the compact form used by the vault and the hot request
// paths.
func (r *Recorder) RecordAccess(ctx context.Context, eventType string, tenantID string, note string) {
	r.Record(ctx, Event{
		Type:     eventType,
		Stream:   models.StreamAccess,
		TenantID: tenantID,
		Actor:    SystemActor,
		Note:     note,
	})
}

func (r *Recorder) toModel(e Event) models.AuditEvent {
	now := time.Now().UTC()

	stream := e.Stream
	if stream == "" {
		stream = models.StreamAccess
	}
	retention := r.accessRetention
	if stream == models.StreamAudit {
		retention = r.auditRetention
	}

	actor := e.Actor
	if actor == "" {
		actor = SystemActor
	}

	return models.AuditEvent{
		Timestamp: now,
		Stream:    stream,
		EventType: e.Type,
		TenantID:  e.TenantID,
		DeviceID:  e.DeviceID,
		Actor:     actor,
		Object:    e.Object,
		Operation: e.Operation,
		Note:      e.Note,
		Payload:   e.Payload,
		ExpiresAt: now.Add(retention),
	}
}

// write persists one event. Uses its own timeout context: the writer must
// not hang on a slow database.
func (r *Recorder) write(event models.AuditEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultWriteTimeout)
	defer cancel()

	if err := r.repo.Insert(ctx, event); err != nil {
		r.fallback(event, "audit write failed: "+err.Error())
	}
}

func (r *Recorder) flush() {
	for {
		select {
		case event := <-r.events:
			r.write(event)
		default:
			return
		}
	}
}

// fallback is the channel of last resort: the event is preserved in the
// process log so a logging failure is itself recorded somewhere.
func (r *Recorder) fallback(event models.AuditEvent, reason string) {
	r.logger.Error("audit event not persisted",
		"reason", reason,
		"event_type", event.EventType,
		"stream", event.Stream,
		"tenant_id", event.TenantID,
		"device_id", event.DeviceID,
		"note", event.Note,
	)
}
