/*
handlers.go - HTTP API handlers for the movement ledger

PURPOSE:
  Exposes the movement engine via REST. Handles HTTP request/response,
  JSON serialization and error-kind to status mapping, and delegates
  every business decision to the engine.

ENDPOINTS:
  Movements:
    GET    /api/movimientos                         List (paginated)
    GET    /api/movimientos/{guid}                  Get by guid
    GET    /api/movimientos/cliente/{clienteGuid}   Client history (paginated)
    POST   /api/movimientos/transferencia           Record a transfer
    POST   /api/movimientos/ingreso-nomina          Record a payroll deposit
    POST   /api/movimientos/pago-tarjeta            Record a card payment
    POST   /api/movimientos/domiciliacion           Record a direct debit
    DELETE /api/movimientos/transferencia/{guid}    Reverse a transfer

ERROR HANDLING:
  Error kinds map to HTTP status:
  - 400: invariant violations (non-positive amount, same-account transfer)
  - 402: insufficient funds, limit exceeded
  - 403: actor does not own the source account
  - 404: account/card/client/movement not found
  - 409: already reversed, not a transfer, reversal window expired
  - 500: everything else

ACTOR:
  The authenticated actor is taken from X-Client-Guid / X-User-Id
  headers. Real authentication is owned by the gateway in front of this
  service; these headers are its trusted output.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - ledger/errors.go: The error taxonomy mapped here
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vivesbank/banking-engine/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine *ledger.Engine
}

// NewHandler creates a handler over the movement engine.
func NewHandler(eng *ledger.Engine) *Handler {
	return &Handler{Engine: eng}
}

// actorFrom resolves the authenticated actor from trusted gateway headers.
func actorFrom(r *http.Request) ledger.Actor {
	return ledger.Actor{
		UserID:     r.Header.Get("X-User-Id"),
		ClientGUID: ledger.ClientGUID(r.Header.Get("X-Client-Guid")),
		IsAdmin:    r.Header.Get("X-Admin") == "true",
	}
}

func pageFrom(r *http.Request) ledger.PageRequest {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("size"))
	return ledger.PageRequest{Page: page, Size: size}
}

// =============================================================================
// READ HANDLERS
// =============================================================================

// ListMovements returns all movements, newest first.
func (h *Handler) ListMovements(w http.ResponseWriter, r *http.Request) {
	page, err := h.Engine.List(r.Context(), pageFrom(r))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPageDTO(page))
}

// GetMovement returns a single movement by guid.
func (h *Handler) GetMovement(w http.ResponseWriter, r *http.Request) {
	guid := ledger.MovementGUID(chi.URLParam(r, "guid"))

	mv, err := h.Engine.GetByGUID(r.Context(), guid)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMovementDTO(mv))
}

// GetClientMovements returns a client's movement history.
func (h *Handler) GetClientMovements(w http.ResponseWriter, r *http.Request) {
	client := ledger.ClientGUID(chi.URLParam(r, "clienteGuid"))

	page, err := h.Engine.GetByClient(r.Context(), client, pageFrom(r))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPageDTO(page))
}

// =============================================================================
// RECORD HANDLERS
// =============================================================================

// RecordTransfer records a Transferencia.
func (h *Handler) RecordTransfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	mv, err := h.Engine.RecordTransfer(r.Context(), actorFrom(r),
		ledger.AccountRef(req.Source), ledger.AccountRef(req.Destination),
		req.Amount, req.Concept)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMovementDTO(mv))
}

// RecordPayroll records an IngresoDeNomina.
func (h *Handler) RecordPayroll(w http.ResponseWriter, r *http.Request) {
	var req PayrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	mv, err := h.Engine.RecordPayroll(r.Context(), actorFrom(r),
		ledger.AccountRef(req.Destination), req.PayerID, req.Amount)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMovementDTO(mv))
}

// RecordCardPayment records a PagoConTarjeta.
func (h *Handler) RecordCardPayment(w http.ResponseWriter, r *http.Request) {
	var req CardPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	mv, err := h.Engine.RecordCardPayment(r.Context(), actorFrom(r),
		ledger.CardRef(req.Card), req.Merchant, req.Amount)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMovementDTO(mv))
}

// RecordDirectDebit records a Domiciliacion.
func (h *Handler) RecordDirectDebit(w http.ResponseWriter, r *http.Request) {
	var req DirectDebitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	periodicity := ledger.Periodicity(req.Periodicity)
	if periodicity == "" {
		periodicity = ledger.PeriodOnce
	}

	mv, err := h.Engine.RecordDirectDebit(r.Context(), actorFrom(r),
		ledger.AccountRef(req.Source), req.CreditorID, req.Amount, periodicity)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMovementDTO(mv))
}

// ReverseTransfer reverses a previously recorded transfer.
func (h *Handler) ReverseTransfer(w http.ResponseWriter, r *http.Request) {
	guid := ledger.MovementGUID(chi.URLParam(r, "guid"))

	mv, err := h.Engine.ReverseTransfer(r.Context(), actorFrom(r), guid)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMovementDTO(mv))
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

// writeLedgerError maps the engine's error taxonomy to HTTP statuses.
// Callers of the API branch on status plus the structured body, never on
// message text.
func writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not found", err)
	case errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrLimitExceeded):
		writeError(w, http.StatusPaymentRequired, "rejected", err)
	case errors.Is(err, ledger.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "forbidden", err)
	case errors.Is(err, ledger.ErrAlreadyReversed),
		errors.Is(err, ledger.ErrNotATransfer),
		errors.Is(err, ledger.ErrReversalWindowExpired):
		writeError(w, http.StatusConflict, "conflict", err)
	case ledger.IsClientError(err):
		writeError(w, http.StatusBadRequest, "invalid request", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
