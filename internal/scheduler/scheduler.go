package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/ledgerline/payroll-psp/internal/reconciliation"
)

// Config holds scheduler configuration.
type Config struct {
	// ReconciliationSchedule is the 5-field cron expression the
	// reconciliation sweep runs on (e.g. "0 */4 * * *" for every 4 hours).
	ReconciliationSchedule string
	// ReservationExpirySchedule is the 5-field cron expression the ledger
	// reservation-TTL sweep runs on.
	ReservationExpirySchedule string
	// Enabled controls whether the scheduler runs any jobs at all.
	Enabled bool
}

// DefaultConfig returns default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		ReconciliationSchedule:    "0 */4 * * *",
		ReservationExpirySchedule: "*/15 * * * *",
		Enabled:                   true,
	}
}

// ReconciliationRunner is the subset of internal/reconciliation's Service
// the scheduler depends on. Kept narrow so tests can fake it.
type ReconciliationRunner interface {
	Run(ctx context.Context, tenantID, legalEntityID string, date time.Time) (reconciliation.Result, error)
}

// ReservationExpirer is the subset of internal/ledger's Service the
// scheduler depends on.
type ReservationExpirer interface {
	ExpireReservations(ctx context.Context) (int64, error)
}

// Scheduler manages background jobs: the per-legal-entity reconciliation
// sweep and the ledger reservation-expiry sweep (§5).
type Scheduler struct {
	cron           *cron.Cron
	repo           Repository
	reconciliation ReconciliationRunner
	ledger         ReservationExpirer
	config         Config
	running        bool
	mu             sync.Mutex
}

// NewScheduler creates a scheduler backed by a pgx pool.
func NewScheduler(db *pgxpool.Pool, reconciliationSvc ReconciliationRunner, ledgerSvc ReservationExpirer, config Config) *Scheduler {
	return NewSchedulerWithRepository(NewPostgresRepository(db), reconciliationSvc, ledgerSvc, config)
}

// NewSchedulerWithRepository creates a scheduler over an arbitrary
// Repository implementation (used by tests).
func NewSchedulerWithRepository(repo Repository, reconciliationSvc ReconciliationRunner, ledgerSvc ReservationExpirer, config Config) *Scheduler {
	return &Scheduler{
		cron:           cron.New(cron.WithSeconds()),
		repo:           repo,
		reconciliation: reconciliationSvc,
		ledger:         ledgerSvc,
		config:         config,
	}
}

// Start starts the scheduler.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	if !s.config.Enabled {
		log.Info().Msg("scheduler is disabled")
		return nil
	}

	// Convert standard 5-field cron to the 6-field format cron.WithSeconds
	// expects by prepending "0" for seconds.
	if _, err := s.cron.AddFunc("0 "+s.config.ReconciliationSchedule, s.runReconciliationSweep); err != nil {
		return fmt.Errorf("add reconciliation sweep job: %w", err)
	}
	if _, err := s.cron.AddFunc("0 "+s.config.ReservationExpirySchedule, s.runReservationExpiry); err != nil {
		return fmt.Errorf("add reservation expiry job: %w", err)
	}

	s.cron.Start()
	s.running = true

	log.Info().
		Str("reconciliation_schedule", s.config.ReconciliationSchedule).
		Str("reservation_expiry_schedule", s.config.ReservationExpirySchedule).
		Msg("scheduler started")

	return nil
}

// Stop stops the scheduler gracefully.
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}

	ctx := s.cron.Stop()
	s.running = false
	log.Info().Msg("scheduler stopped")
	return ctx
}

// runReconciliationSweep runs the reconciliation sweep for every active
// legal entity (§4.10).
func (s *Scheduler) runReconciliationSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	log.Info().Msg("starting scheduled reconciliation sweep")

	entities, err := s.repo.ListActiveLegalEntities(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to list legal entities for reconciliation sweep")
		return
	}

	today := time.Now()
	var swept, errored int
	for _, le := range entities {
		result, err := s.reconciliation.Run(ctx, le.TenantID, le.LegalEntityID, today)
		if err != nil {
			log.Error().
				Err(err).
				Str("tenant_id", le.TenantID).
				Str("legal_entity_id", le.LegalEntityID).
				Msg("reconciliation sweep failed for legal entity")
			errored++
			continue
		}
		swept++
		log.Info().
			Str("tenant_id", le.TenantID).
			Str("legal_entity_id", le.LegalEntityID).
			Int("pulled", result.Pulled).
			Int("matched", result.Matched).
			Int("unmatched", result.Unmatched).
			Msg("reconciliation sweep completed for legal entity")
	}

	log.Info().
		Int("legal_entities_swept", swept).
		Int("legal_entities_errored", errored).
		Msg("completed scheduled reconciliation sweep")
}

// runReservationExpiry flips every ledger reservation past its TTL to
// expired (§4.6).
func (s *Scheduler) runReservationExpiry() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	count, err := s.ledger.ExpireReservations(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to expire ledger reservations")
		return
	}
	if count > 0 {
		log.Info().Int64("expired", count).Msg("expired ledger reservations")
	}
}

// RunNow manually triggers both scheduled jobs, in order.
func (s *Scheduler) RunNow() {
	s.runReconciliationSweep()
	s.runReservationExpiry()
}

// IsRunning returns whether the scheduler is currently running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
