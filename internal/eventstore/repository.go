package eventstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerline/payroll-psp/internal/events"
)

// RepositoryInterface defines the contract for the append-only event log.
type RepositoryInterface interface {
	EnsureSchema(ctx context.Context) error
	Append(ctx context.Context, evt events.Event) (Record, error)
	Query(ctx context.Context, filter Filter) ([]Record, error)
}

// Repository is the pgx-backed append-only event store.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new event-store repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// EnsureSchema creates the domain_events table if absent.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS domain_events (
			sequence BIGSERIAL PRIMARY KEY,
			event_id UUID NOT NULL UNIQUE,
			event_type TEXT NOT NULL,
			category TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			correlation_id TEXT NOT NULL,
			causation_id TEXT NOT NULL DEFAULT '',
			actor TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			schema_version INT NOT NULL DEFAULT 1,
			occurred_at TIMESTAMPTZ NOT NULL,
			stored_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			payload JSONB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_domain_events_tenant_time ON domain_events(tenant_id, occurred_at);
		CREATE INDEX IF NOT EXISTS idx_domain_events_correlation ON domain_events(correlation_id);
		CREATE INDEX IF NOT EXISTS idx_domain_events_causation ON domain_events(causation_id);
		CREATE INDEX IF NOT EXISTS idx_domain_events_category ON domain_events(category);
		CREATE INDEX IF NOT EXISTS idx_domain_events_type ON domain_events(event_type);
	`)
	if err != nil {
		return fmt.Errorf("ensure event store schema: %w", err)
	}
	return nil
}

// Append persists a single event. event_id is generated if the caller did
// not already set one on the event's metadata.
func (r *Repository) Append(ctx context.Context, evt events.Event) (Record, error) {
	if evt.Metadata.EventID == "" {
		evt.Metadata.EventID = uuid.New().String()
	}
	if evt.Metadata.Timestamp.IsZero() {
		evt.Metadata.Timestamp = time.Now()
	}

	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return Record{}, fmt.Errorf("marshal event payload: %w", err)
	}

	var rec Record
	rec.Event = evt
	err = r.db.QueryRow(ctx, `
		INSERT INTO domain_events (
			event_id, event_type, category, tenant_id, correlation_id, causation_id,
			actor, source, schema_version, occurred_at, payload
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING sequence, stored_at
	`,
		evt.Metadata.EventID, string(evt.Type), string(evt.Category), evt.Metadata.TenantID,
		evt.Metadata.CorrelationID, evt.Metadata.CausationID, evt.Metadata.Actor, evt.Metadata.Source,
		evt.Metadata.SchemaVersion, evt.Metadata.Timestamp, payload,
	).Scan(&rec.Sequence, &rec.StoredAt)
	if err != nil {
		return Record{}, fmt.Errorf("append event: %w", err)
	}
	return rec, nil
}

// Query returns events matching filter, ordered by occurred_at then
// insertion sequence — the order replay guarantees.
func (r *Repository) Query(ctx context.Context, filter Filter) ([]Record, error) {
	query := `
		SELECT sequence, event_id, event_type, category, tenant_id, correlation_id,
		       causation_id, actor, source, schema_version, occurred_at, stored_at, payload
		FROM domain_events
		WHERE tenant_id = $1
	`
	args := []any{filter.TenantID}

	if filter.From != nil {
		args = append(args, *filter.From)
		query += fmt.Sprintf(" AND occurred_at >= $%d", len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		query += fmt.Sprintf(" AND occurred_at <= $%d", len(args))
	}
	if filter.CorrelationID != "" {
		args = append(args, filter.CorrelationID)
		query += fmt.Sprintf(" AND correlation_id = $%d", len(args))
	}
	if filter.CausationID != "" {
		args = append(args, filter.CausationID)
		query += fmt.Sprintf(" AND causation_id = $%d", len(args))
	}
	if filter.Category != "" {
		args = append(args, string(filter.Category))
		query += fmt.Sprintf(" AND category = $%d", len(args))
	}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		query += fmt.Sprintf(" AND event_type = $%d", len(args))
	}
	query += " ORDER BY occurred_at ASC, sequence ASC"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec     Record
			payload []byte
		)
		if err := rows.Scan(
			&rec.Sequence, &rec.Event.Metadata.EventID, &rec.Event.Type, &rec.Event.Category,
			&rec.Event.Metadata.TenantID, &rec.Event.Metadata.CorrelationID, &rec.Event.Metadata.CausationID,
			&rec.Event.Metadata.Actor, &rec.Event.Metadata.Source, &rec.Event.Metadata.SchemaVersion,
			&rec.Event.Metadata.Timestamp, &rec.StoredAt, &payload,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if err := json.Unmarshal(payload, &rec.Event.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal event payload: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}
