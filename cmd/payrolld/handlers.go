package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ledgerline/payroll-psp/internal/apierror"
	"github.com/ledgerline/payroll-psp/internal/config"
	"github.com/ledgerline/payroll-psp/internal/fundinggate"
	"github.com/ledgerline/payroll-psp/internal/payments"
	"github.com/ledgerline/payroll-psp/internal/payroll"
	"github.com/ledgerline/payroll-psp/internal/reconciliation"
)

// handlers holds every service the thin HTTP surface dispatches to. There
// is no authentication here: authentication and tenant extraction are an
// external collaborator, so every handler reads a pass-through
// X-Tenant-ID header rather than a pre-authenticated session.
type handlers struct {
	cfg            *config.Config
	payroll        *payroll.Service
	funding        *fundinggate.Service
	payments       *payments.Service
	reconciliation *reconciliation.Service
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	if status >= 500 {
		message = apierror.Sanitize(message)
	}
	respondJSON(w, status, map[string]string{"error": message})
}

func decodeJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func tenantID(r *http.Request) string {
	return r.Header.Get("X-Tenant-ID")
}

func requireTenant(w http.ResponseWriter, r *http.Request) (string, bool) {
	t := tenantID(r)
	if t == "" {
		respondError(w, http.StatusBadRequest, "X-Tenant-ID header is required")
		return "", false
	}
	return t, true
}

func (h *handlers) previewRun(w http.ResponseWriter, r *http.Request) {
	tid, ok := requireTenant(w, r)
	if !ok {
		return
	}
	payRunID := chi.URLParam(r, "payRunID")

	var body struct {
		AsOf time.Time `json:"as_of"`
	}
	if err := decodeJSON(r, &body); err != nil && err.Error() != "EOF" {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	asOf := body.AsOf
	if asOf.IsZero() {
		asOf = time.Now()
	}

	employees, err := h.payroll.PreviewRun(r.Context(), tid, payRunID, asOf)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, employees)
}

func (h *handlers) approveRun(w http.ResponseWriter, r *http.Request) {
	tid, ok := requireTenant(w, r)
	if !ok {
		return
	}
	payRunID := chi.URLParam(r, "payRunID")

	var body struct {
		ApprovedBy string `json:"approved_by"`
	}
	if err := decodeJSON(r, &body); err != nil && err.Error() != "EOF" {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.payroll.ApproveRun(r.Context(), tid, payRunID, body.ApprovedBy); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "approved"})
}

func (h *handlers) commitRun(w http.ResponseWriter, r *http.Request) {
	tid, ok := requireTenant(w, r)
	if !ok {
		return
	}
	payRunID := chi.URLParam(r, "payRunID")

	var body struct {
		Results []payroll.CalculationResult `json:"calculation_results"`
	}
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	statements, err := h.payroll.CommitRun(r.Context(), tid, payRunID, body.Results)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, statements)
}

func (h *handlers) reopenRun(w http.ResponseWriter, r *http.Request) {
	tid, ok := requireTenant(w, r)
	if !ok {
		return
	}
	payRunID := chi.URLParam(r, "payRunID")

	var body struct {
		Reason string `json:"reason"`
	}
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.payroll.ReopenRun(r.Context(), tid, payRunID, body.Reason); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "preview"})
}

func (h *handlers) voidRun(w http.ResponseWriter, r *http.Request) {
	tid, ok := requireTenant(w, r)
	if !ok {
		return
	}
	payRunID := chi.URLParam(r, "payRunID")

	var body struct {
		Reason string `json:"reason"`
	}
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Reason == "" {
		respondError(w, http.StatusBadRequest, "reason is required")
		return
	}

	if err := h.payroll.VoidRun(r.Context(), tid, payRunID, body.Reason); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "voided"})
}

func (h *handlers) evaluateGate(w http.ResponseWriter, r *http.Request) {
	tid, ok := requireTenant(w, r)
	if !ok {
		return
	}

	var body struct {
		LegalEntityID  string                      `json:"legal_entity_id"`
		PayRunID       string                      `json:"pay_run_id"`
		Model          fundinggate.FundingModel    `json:"model"`
		Totals         fundinggate.StatementTotals `json:"totals"`
		IdempotencyKey string                      `json:"idempotency_key"`
		Strict         bool                        `json:"strict"`
	}
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.funding.Evaluate(r.Context(), tid, body.LegalEntityID, body.PayRunID, body.Model, body.Totals, body.IdempotencyKey, body.Strict)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *handlers) createInstruction(w http.ResponseWriter, r *http.Request) {
	tid, ok := requireTenant(w, r)
	if !ok {
		return
	}

	var inst payments.Instruction
	if err := decodeJSON(r, &inst); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	inst.TenantID = tid

	created, err := h.payments.CreateInstruction(r.Context(), inst)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (h *handlers) submitInstruction(w http.ResponseWriter, r *http.Request) {
	tid, ok := requireTenant(w, r)
	if !ok {
		return
	}
	instructionID := chi.URLParam(r, "instructionID")

	attempt, err := h.payments.Submit(r.Context(), tid, instructionID)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, attempt)
}

func (h *handlers) runReconciliation(w http.ResponseWriter, r *http.Request) {
	tid, ok := requireTenant(w, r)
	if !ok {
		return
	}

	var body struct {
		LegalEntityID string    `json:"legal_entity_id"`
		Date          time.Time `json:"date"`
	}
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	date := body.Date
	if date.IsZero() {
		date = time.Now()
	}

	result, err := h.reconciliation.Run(r.Context(), tid, body.LegalEntityID, date)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, result)
}
