package railprovider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var fedNowMaxAmount = decimal.RequireFromString("500000")

// fedNowSubmission tracks one instruction through the stub's in-memory
// lifecycle. FedNow settles instantly in production, so unlike the ACH
// stub there is no "waiting for estimated settlement" window — status goes
// straight to settled (or accepted, if autoSettle is off) on submit.
type fedNowSubmission struct {
	payload        InstructionPayload
	messageID      string
	settlementDate time.Time
	status         Status
}

// FedNowStub is a development/test FedNow adapter over the Federal
// Reserve's instant payment rail. Grounded on the Python fednow_stub
// reference adapter: 24/7 availability, $500,000 per-transaction limit,
// same-day settlement, and cancellation always refused, whether or not the
// payment has settled.
type FedNowStub struct {
	mu         sync.Mutex
	autoSettle bool
	submitted  map[string]*fedNowSubmission
}

func NewFedNowStub(autoSettle bool) *FedNowStub {
	return &FedNowStub{autoSettle: autoSettle, submitted: make(map[string]*fedNowSubmission)}
}

func (p *FedNowStub) Name() string { return "fednow_stub" }

func (p *FedNowStub) Capabilities() Capabilities {
	return Capabilities{
		FedNow:  true,
		Cutoffs: []string{"availability:24/7/365"},
		Limits: map[string]decimal.Decimal{
			"fednow_max": fedNowMaxAmount,
		},
		SettlementTimelines: map[string]time.Duration{
			"fednow_credit": 0,
		},
	}
}

func (p *FedNowStub) Submit(ctx context.Context, payload InstructionPayload) (SubmitResult, error) {
	providerRequestID := fmt.Sprintf("FEDNOW-%s", payload.InstructionID)

	if payload.Amount.GreaterThan(fedNowMaxAmount) {
		return SubmitResult{
			ProviderRequestID: providerRequestID,
			Accepted:          false,
			Message:           "FedNow limit exceeded: max $500,000 per transaction",
		}, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	messageID := fmt.Sprintf("FEDNOW%s", uuid.New().String()[:20])
	settlementDate := time.Now()
	status := StatusAccepted
	if p.autoSettle {
		status = StatusSettled
	}
	p.submitted[providerRequestID] = &fedNowSubmission{
		payload: payload, messageID: messageID, settlementDate: settlementDate, status: status,
	}

	return SubmitResult{
		ProviderRequestID:       providerRequestID,
		Accepted:                true,
		Message:                "FedNow stub accepted - instant settlement",
		TraceID:                 messageID,
		EstimatedSettlementDate: &settlementDate,
	}, nil
}

func (p *FedNowStub) GetStatus(ctx context.Context, providerRequestID string) (StatusResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	sub, ok := p.submitted[providerRequestID]
	if !ok {
		return StatusResult{Status: StatusUnknown, Message: fmt.Sprintf("payment %s not found", providerRequestID)}, nil
	}
	return StatusResult{
		Status:          sub.status,
		Message:         "FedNow stub status",
		ExternalTraceID: sub.messageID,
		EffectiveDate:   &sub.settlementDate,
	}, nil
}

func (p *FedNowStub) Cancel(ctx context.Context, providerRequestID string) (CancelResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.submitted[providerRequestID]; !ok {
		return CancelResult{Success: false, Message: fmt.Sprintf("payment %s not found", providerRequestID)}, nil
	}
	return CancelResult{
		Success:  false,
		Message:  "FedNow payments settle instantly and cannot be cancelled",
		CanRetry: false,
	}, nil
}

func (p *FedNowStub) Reconcile(ctx context.Context, date time.Time) ([]SettlementRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []SettlementRecord
	for _, sub := range p.submitted {
		if !sameDay(sub.settlementDate, date) {
			continue
		}
		out = append(out, SettlementRecord{
			ExternalTraceID: sub.messageID,
			EffectiveDate:   date,
			Status:          sub.status,
			Amount:          sub.payload.Amount,
			Currency:        sub.payload.Currency,
			Direction:       sub.payload.Direction,
			RawPayload:      map[string]any{"instruction_id": sub.payload.InstructionID},
		})
	}
	return out, nil
}
