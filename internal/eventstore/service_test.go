package eventstore

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/payroll-psp/internal/events"
)

// memRepo is an in-memory RepositoryInterface used to unit test Service
// without a database, exercising business logic against a fake repository.
type memRepo struct {
	records []Record
	seq     int64
}

func (m *memRepo) EnsureSchema(ctx context.Context) error { return nil }

func (m *memRepo) Append(ctx context.Context, evt events.Event) (Record, error) {
	m.seq++
	rec := Record{Sequence: m.seq, Event: evt, StoredAt: time.Now()}
	m.records = append(m.records, rec)
	return rec, nil
}

func (m *memRepo) Query(ctx context.Context, filter Filter) ([]Record, error) {
	var out []Record
	for _, rec := range m.records {
		if filter.TenantID != "" && rec.Event.Metadata.TenantID != filter.TenantID {
			continue
		}
		if filter.CorrelationID != "" && rec.Event.Metadata.CorrelationID != filter.CorrelationID {
			continue
		}
		if filter.Category != "" && rec.Event.Category != filter.Category {
			continue
		}
		if filter.Type != "" && rec.Event.Type != filter.Type {
			continue
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Event.Metadata.Timestamp.Equal(out[j].Event.Metadata.Timestamp) {
			return out[i].Sequence < out[j].Sequence
		}
		return out[i].Event.Metadata.Timestamp.Before(out[j].Event.Metadata.Timestamp)
	})
	return out, nil
}

func TestService_AppendAndReplay(t *testing.T) {
	s := NewServiceWithRepository(&memRepo{})
	ctx := context.Background()

	e1 := events.New(events.TypeFundingApproved, "tenant-1", "corr-1", nil)
	e2 := events.New(events.TypePaymentInstructionCreated, "tenant-1", "corr-1", nil)
	e3 := events.New(events.TypeFundingApproved, "tenant-2", "corr-2", nil)

	_, err := s.Append(ctx, e1)
	require.NoError(t, err)
	_, err = s.Append(ctx, e2)
	require.NoError(t, err)
	_, err = s.Append(ctx, e3)
	require.NoError(t, err)

	recs, err := s.Replay(ctx, Filter{TenantID: "tenant-1"})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, events.TypeFundingApproved, recs[0].Event.Type)
	assert.Equal(t, events.TypePaymentInstructionCreated, recs[1].Event.Type)
}

func TestService_ReplayByCorrelation(t *testing.T) {
	s := NewServiceWithRepository(&memRepo{})
	ctx := context.Background()

	_, _ = s.Append(ctx, events.New(events.TypeFundingApproved, "t", "corr-a", nil))
	_, _ = s.Append(ctx, events.New(events.TypeFundingApproved, "t", "corr-b", nil))

	recs, err := s.Replay(ctx, Filter{TenantID: "t", CorrelationID: "corr-a"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
}

func TestService_EmitterSinkAppendsOnEmission(t *testing.T) {
	repo := &memRepo{}
	s := NewServiceWithRepository(repo)
	e := events.NewEmitter()
	e.OnAll("store", s.EmitterSink())

	errs := e.Emit(context.Background(), events.New(events.TypeLedgerEntryPosted, "t", "c", nil))
	assert.Empty(t, errs)
	assert.Len(t, repo.records, 1)
}
