package ratecard

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerline/payroll-psp/internal/database"
)

// Service resolves the applicable pay rate for an employee, caching the
// effective candidate set per (tenant, employee, as-of date) and
// invalidating implicitly whenever the repository's rate version advances.
type Service struct {
	repo  RepositoryInterface
	cache *database.VersionedCache[[]PayRate]
}

// NewService creates a pgx-backed rate resolver service.
func NewService(db *pgxpool.Pool) *Service {
	return &Service{repo: NewRepository(db), cache: database.NewVersionedCache[[]PayRate]()}
}

// NewServiceWithRepository creates a rate resolver service over an
// arbitrary repository implementation (used by tests).
func NewServiceWithRepository(repo RepositoryInterface) *Service {
	return &Service{repo: repo, cache: database.NewVersionedCache[[]PayRate]()}
}

// EnsureSchema bootstraps the pay_rates table.
func (s *Service) EnsureSchema(ctx context.Context) error {
	return s.repo.EnsureSchema(ctx)
}

// CreateRate persists a new pay rate. The cache is keyed by version, so no
// explicit invalidation call is needed: the next Resolve call for this
// employee observes the bumped version and reloads.
func (s *Service) CreateRate(ctx context.Context, r *PayRate) error {
	return s.repo.CreateRate(ctx, r)
}

// Resolve implements §4.1's contract: given an employee, an as-of date, and
// optional dimensional qualifiers, return the applicable rate or
// ErrRateNotFound. A non-nil rateOverride bypasses resolution entirely.
func (s *Service) Resolve(ctx context.Context, tenantID, employeeID string, asOf time.Time, dims Dimensions, rateOverride *PayRate) (PayRate, error) {
	if rateOverride != nil {
		return *rateOverride, nil
	}

	version, err := s.repo.Version(ctx, tenantID, employeeID)
	if err != nil {
		return PayRate{}, err
	}

	cacheKey := fmt.Sprintf("%s|%s|%s", tenantID, employeeID, asOf.Format("2006-01-02"))
	candidates, ok := s.cache.Get(cacheKey, version)
	if !ok {
		candidates, err = s.repo.RatesEffectiveOn(ctx, tenantID, employeeID, asOf)
		if err != nil {
			return PayRate{}, err
		}
		s.cache.Set(cacheKey, version, candidates)
	}

	return Resolve(candidates, dims, nil)
}
