package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// mockRepository is an in-memory RepositoryInterface used to exercise the
// orchestrator's business rules without a database.
type mockRepository struct {
	instructions      map[string]*Instruction
	instructionsByKey map[string]*Instruction
	attempts          map[string]*Attempt
	attemptsByRequest map[string]*Attempt
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		instructions:      make(map[string]*Instruction),
		instructionsByKey: make(map[string]*Instruction),
		attempts:          make(map[string]*Attempt),
		attemptsByRequest: make(map[string]*Attempt),
	}
}

func (m *mockRepository) EnsureSchema(ctx context.Context) error { return nil }

func (m *mockRepository) CreateInstruction(ctx context.Context, inst *Instruction) (*Instruction, bool, error) {
	key := inst.TenantID + "|" + inst.IdempotencyKey
	if existing, ok := m.instructionsByKey[key]; ok {
		return existing, false, nil
	}
	if inst.ID == "" {
		inst.ID = uuid.New().String()
	}
	now := time.Now()
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = now
	}
	inst.UpdatedAt = now
	m.instructions[inst.ID] = inst
	m.instructionsByKey[key] = inst
	return inst, true, nil
}

func (m *mockRepository) GetInstruction(ctx context.Context, tenantID, instructionID string) (*Instruction, error) {
	inst, ok := m.instructions[instructionID]
	if !ok || inst.TenantID != tenantID {
		return nil, fmt.Errorf("payment instruction not found")
	}
	cp := *inst
	return &cp, nil
}

func (m *mockRepository) GetInstructionByIdempotencyKey(ctx context.Context, tenantID, key string) (*Instruction, error) {
	inst, ok := m.instructionsByKey[tenantID+"|"+key]
	if !ok {
		return nil, fmt.Errorf("payment instruction not found")
	}
	cp := *inst
	return &cp, nil
}

func (m *mockRepository) UpdateInstructionStatus(ctx context.Context, tenantID, instructionID string, status InstructionStatus, providerName string) error {
	inst, ok := m.instructions[instructionID]
	if !ok || inst.TenantID != tenantID {
		return fmt.Errorf("payment instruction not found: %s", instructionID)
	}
	inst.Status = status
	if providerName != "" {
		inst.ProviderName = providerName
	}
	inst.UpdatedAt = time.Now()
	return nil
}

func (m *mockRepository) CreateAttempt(ctx context.Context, a *Attempt) (*Attempt, bool, error) {
	key := a.Provider + "|" + a.ProviderRequestID
	if existing, ok := m.attemptsByRequest[key]; ok {
		return existing, false, nil
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	m.attempts[a.ID] = a
	m.attemptsByRequest[key] = a
	return a, true, nil
}

func (m *mockRepository) ListAttemptsByInstruction(ctx context.Context, tenantID, instructionID string) ([]Attempt, error) {
	var out []Attempt
	for _, a := range m.attempts {
		if a.InstructionID == instructionID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *mockRepository) UpdateAttemptStatus(ctx context.Context, attemptID string, status AttemptStatus, message, externalTraceID, returnCode string) error {
	a, ok := m.attempts[attemptID]
	if !ok {
		return fmt.Errorf("payment attempt not found: %s", attemptID)
	}
	a.Status = status
	a.Message = message
	a.ExternalTraceID = externalTraceID
	a.ReturnCode = returnCode
	return nil
}

func (m *mockRepository) FindAttemptByExternalTraceID(ctx context.Context, provider, externalTraceID string) (*Attempt, error) {
	var latest *Attempt
	for _, a := range m.attempts {
		if a.Provider != provider || a.ExternalTraceID != externalTraceID {
			continue
		}
		if latest == nil || a.CreatedAt.After(latest.CreatedAt) {
			latest = a
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("payment attempt not found")
	}
	cp := *latest
	return &cp, nil
}

func (m *mockRepository) GetInstructionByID(ctx context.Context, instructionID string) (*Instruction, error) {
	inst, ok := m.instructions[instructionID]
	if !ok {
		return nil, fmt.Errorf("payment instruction not found")
	}
	cp := *inst
	return &cp, nil
}
