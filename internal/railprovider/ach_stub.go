package railprovider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// achSubmission is what the stub remembers about one submitted instruction,
// enough to answer get_status/reconcile without a real NACHA file exchange.
type achSubmission struct {
	payload             InstructionPayload
	traceID             string
	estimatedSettlement time.Time
	status              Status
	returnCode          string
}

// ACHStub is a development/test ACH adapter. It never touches a real bank
// rail: submissions are tracked in memory and settle automatically (or stay
// in accepted, if configured) rather than waiting on an actual NACHA batch
// cycle. Replace with a real file-builder or bank API adapter for
// production. Grounded on the Python ach_stub reference adapter's behavior:
// same-day vs. standard cutoffs, T+1 standard settlement, trace ID shape,
// and R0x-style return codes on reconcile.
type ACHStub struct {
	mu         sync.Mutex
	autoSettle bool
	submitted  map[string]*achSubmission
}

// NewACHStub creates an ACH stub. When autoSettle is true (the default for
// local/sandbox use) submissions report settled immediately; set it false
// to hold submissions at accepted until a test explicitly advances them.
func NewACHStub(autoSettle bool) *ACHStub {
	return &ACHStub{autoSettle: autoSettle, submitted: make(map[string]*achSubmission)}
}

func (p *ACHStub) Name() string { return "ach_stub" }

func (p *ACHStub) Capabilities() Capabilities {
	return Capabilities{
		ACHCredit: true,
		ACHDebit:  true,
		Cutoffs:   []string{"ach_same_day:14:00 CT", "ach_standard:17:00 CT"},
		Limits: map[string]decimal.Decimal{
			"ach_same_day_max": decimal.RequireFromString("1000000.00"),
			"ach_standard_max": decimal.RequireFromString("99999999.99"),
		},
		SettlementTimelines: map[string]time.Duration{
			"ach_credit_same_day": 0,
			"ach_credit_standard": 24 * time.Hour,
			"ach_debit_standard":  48 * time.Hour,
		},
	}
}

func (p *ACHStub) Submit(ctx context.Context, payload InstructionPayload) (SubmitResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	providerRequestID := fmt.Sprintf("ACHSTUB-%s", payload.InstructionID)
	traceID := fmt.Sprintf("ACHSTUB%s%s", time.Now().UTC().Format("20060102"), shortID(payload.InstructionID))

	estimated := payload.SettlementDate
	var settlement time.Time
	if estimated != nil {
		settlement = *estimated
	} else {
		settlement = time.Now().AddDate(0, 0, 1)
	}

	status := StatusAccepted
	if p.autoSettle {
		status = StatusSettled
	}
	p.submitted[providerRequestID] = &achSubmission{
		payload: payload, traceID: traceID, estimatedSettlement: settlement, status: status,
	}

	return SubmitResult{
		ProviderRequestID:       providerRequestID,
		Accepted:                true,
		Message:                "ACH stub accepted",
		TraceID:                 traceID,
		EstimatedSettlementDate: &settlement,
	}, nil
}

func (p *ACHStub) GetStatus(ctx context.Context, providerRequestID string) (StatusResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	sub, ok := p.submitted[providerRequestID]
	if !ok {
		return StatusResult{Status: StatusUnknown, Message: fmt.Sprintf("payment %s not found", providerRequestID)}, nil
	}
	return StatusResult{
		Status:          sub.status,
		Message:         "ACH stub status",
		ExternalTraceID: sub.traceID,
		EffectiveDate:   &sub.estimatedSettlement,
		ReturnCode:      sub.returnCode,
	}, nil
}

func (p *ACHStub) Cancel(ctx context.Context, providerRequestID string) (CancelResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	sub, ok := p.submitted[providerRequestID]
	if !ok {
		return CancelResult{Success: false, Message: fmt.Sprintf("payment %s not found", providerRequestID)}, nil
	}
	if sub.status == StatusSettled || sub.status == StatusFailed {
		return CancelResult{Success: false, Message: "cannot cancel settled/failed payment", CanRetry: false}, nil
	}
	sub.status = StatusReversed
	return CancelResult{Success: true, Message: "ACH stub canceled"}, nil
}

func (p *ACHStub) Reconcile(ctx context.Context, date time.Time) ([]SettlementRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []SettlementRecord
	for _, sub := range p.submitted {
		if !sameDay(sub.estimatedSettlement, date) {
			continue
		}
		out = append(out, SettlementRecord{
			ExternalTraceID: sub.traceID,
			EffectiveDate:   date,
			Status:          sub.status,
			Amount:          sub.payload.Amount,
			Currency:        sub.payload.Currency,
			Direction:       sub.payload.Direction,
			ReturnCode:      sub.returnCode,
			RawPayload:      map[string]any{"instruction_id": sub.payload.InstructionID},
		})
	}
	return out, nil
}

// SimulateReturn flips a submission to returned with the given R0x code, for
// exercising reconciliation's return-handling path in tests.
func (p *ACHStub) SimulateReturn(providerRequestID, returnCode string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if sub, ok := p.submitted[providerRequestID]; ok {
		sub.status = StatusReturned
		sub.returnCode = returnCode
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
