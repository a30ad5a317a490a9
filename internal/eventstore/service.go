package eventstore

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerline/payroll-psp/internal/events"
)

// Service is the event store's entry point: append on write, replay on read.
type Service struct {
	repo RepositoryInterface
}

// NewService creates a pgx-backed event store service.
func NewService(db *pgxpool.Pool) *Service {
	return &Service{repo: NewRepository(db)}
}

// NewServiceWithRepository creates an event store service over an arbitrary
// repository implementation (used by tests and the in-memory adapter).
func NewServiceWithRepository(repo RepositoryInterface) *Service {
	return &Service{repo: repo}
}

// EnsureSchema bootstraps the append-only table.
func (s *Service) EnsureSchema(ctx context.Context) error {
	return s.repo.EnsureSchema(ctx)
}

// Append persists a single event.
func (s *Service) Append(ctx context.Context, evt events.Event) (Record, error) {
	return s.repo.Append(ctx, evt)
}

// Replay returns every event matching filter in timestamp-then-insertion
// order, suitable for rebuilding derived state or auditing a correlation.
func (s *Service) Replay(ctx context.Context, filter Filter) ([]Record, error) {
	return s.repo.Query(ctx, filter)
}

// EmitterSink returns an events.Handler that appends every event it
// receives — wiring the emitter straight into the store so every emission
// is durably recorded, matching the "event store for replay" responsibility
// from the system overview.
func (s *Service) EmitterSink() events.Handler {
	return func(ctx context.Context, evt events.Event) error {
		_, err := s.Append(ctx, evt)
		return err
	}
}
