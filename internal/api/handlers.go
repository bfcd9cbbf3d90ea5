/**
 * @description
 * This file contains the HTTP handlers for transfers and account queries. Handlers
 * parse incoming requests, validate input, run the authorization policy with the
 * caller taken from the request context, and only then call the transfer engine.
 * Engine error kinds are mapped to HTTP status codes here.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/rates: service logic, models and error kinds.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/transfa/ledger-service/internal/app"
	"github.com/transfa/ledger-service/internal/domain"
	"github.com/transfa/ledger-service/internal/rates"
)

// Handlers holds the services the HTTP handlers use.
type Handlers struct {
	transfers    app.TransferService
	ledger       *app.Ledger
	rates        rates.Store
	limiter      app.TransferRateLimiter
	baseCurrency string
}

// NewHandlers creates a new instance of Handlers. limiter may be nil.
func NewHandlers(transfers app.TransferService, ledger *app.Ledger, rateStore rates.Store, limiter app.TransferRateLimiter, baseCurrency string) *Handlers {
	return &Handlers{
		transfers:    transfers,
		ledger:       ledger,
		rates:        rateStore,
		limiter:      limiter,
		baseCurrency: domain.NormalizeCurrencyCode(baseCurrency),
	}
}

// transferRequest is the body of POST /transactions.
type transferRequest struct {
	Amount                   *decimal.Decimal `json:"amount"`
	SourceAccountNumber      string           `json:"source_account_number"`
	DestinationAccountNumber string           `json:"destination_account_number"`
}

type validationErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

func (req transferRequest) validate() map[string]string {
	fields := make(map[string]string)
	switch {
	case req.Amount == nil:
		fields["amount"] = "amount is required"
	case !req.Amount.IsPositive():
		fields["amount"] = "amount must be greater than zero"
	case !domain.HasAtMostScale(*req.Amount, domain.MaxMinorUnits):
		fields["amount"] = "amount must have at most 2 fractional digits"
	}
	if msg := validateAccountNumber(req.SourceAccountNumber); msg != "" {
		fields["source_account_number"] = msg
	}
	if msg := validateAccountNumber(req.DestinationAccountNumber); msg != "" {
		fields["destination_account_number"] = msg
	}
	if len(fields) == 0 && req.SourceAccountNumber == req.DestinationAccountNumber {
		fields["destination_account_number"] = "destination must differ from source account"
	}
	return fields
}

func validateAccountNumber(number string) string {
	if strings.TrimSpace(number) == "" {
		return "account number is required"
	}
	if len(number) != domain.AccountNumberLength {
		return fmt.Sprintf("account number must be %d digits", domain.AccountNumberLength)
	}
	for _, r := range number {
		if !unicode.IsDigit(r) {
			return fmt.Sprintf("account number must be %d digits", domain.AccountNumberLength)
		}
	}
	return ""
}

// CreateTransferHandler handles POST /transactions.
func (h *Handlers) CreateTransferHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Could not get actor from context")
		return
	}

	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if fields := req.validate(); len(fields) > 0 {
		h.writeJSON(w, http.StatusUnprocessableEntity, validationErrorResponse{Error: "validation failed", Fields: fields})
		return
	}

	source, err := h.ledger.FindAccountByNumber(r.Context(), req.SourceAccountNumber)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			h.writeTransferError(w, domain.ErrSourceAccountNotFound)
			return
		}
		log.Printf("level=error component=api endpoint=create_transfer msg=\"source lookup failed\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Unable to process transfer")
		return
	}
	if !CanTransferFrom(actor, source) {
		log.Printf("level=warn component=api endpoint=create_transfer outcome=reject reason=forbidden actor_id=%s source=%s", actor.ID, source.Number)
		h.writeError(w, http.StatusForbidden, "Not allowed to transfer from this bank account")
		return
	}

	if h.limiter != nil {
		allowed, retryAfter, limitErr := h.limiter.Allow(r.Context(), source.Number)
		if limitErr != nil {
			log.Printf("level=warn component=api endpoint=create_transfer msg=\"rate limiter unavailable; allowing\" err=%v", limitErr)
		} else if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			h.writeError(w, http.StatusTooManyRequests, "Too many transfers. Please wait and try again.")
			return
		}
	}

	txn, err := h.transfers.Transfer(r.Context(), domain.TransferRequest{
		Amount:                   *req.Amount,
		SourceAccountNumber:      req.SourceAccountNumber,
		DestinationAccountNumber: req.DestinationAccountNumber,
	})
	if err != nil {
		log.Printf("level=warn component=api endpoint=create_transfer outcome=failed actor_id=%s source=%s err=%v", actor.ID, source.Number, err)
		h.writeTransferError(w, err)
		return
	}

	log.Printf("level=info component=api endpoint=create_transfer outcome=success transaction_id=%s", txn.ID)
	h.writeJSON(w, http.StatusCreated, txn)
}

// GetTransactionHandler handles GET /transactions/{id}.
func (h *Handlers) GetTransactionHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Could not get actor from context")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid transaction id")
		return
	}

	txn, err := h.ledger.FindTransaction(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrTransactionNotFound) {
			h.writeError(w, http.StatusNotFound, "Transaction not found")
			return
		}
		log.Printf("level=error component=api endpoint=get_transaction transaction_id=%s err=%v", id, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to load transaction")
		return
	}

	if !actor.HasPermission(domain.PermissionTransactionRead) {
		source, srcErr := h.ledger.FindAccountByID(r.Context(), txn.SourceAccountID)
		destination, dstErr := h.ledger.FindAccountByID(r.Context(), txn.DestinationAccountID)
		if srcErr != nil || dstErr != nil || !CanReadTransaction(actor, source, destination) {
			h.writeError(w, http.StatusForbidden, "Not allowed to view this transaction")
			return
		}
	}

	h.writeJSON(w, http.StatusOK, txn)
}

// ListTransactionsHandler handles GET /transactions. Only actors holding
// TRANSACTION_READ may list the whole log.
func (h *Handlers) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Could not get actor from context")
		return
	}
	if !CanListTransactions(actor) {
		h.writeError(w, http.StatusForbidden, "Not allowed to list transactions")
		return
	}
	limit, offset, ok := h.pagination(w, r)
	if !ok {
		return
	}

	transactions, err := h.ledger.Transactions(r.Context(), limit, offset)
	if err != nil {
		log.Printf("level=error component=api endpoint=list_transactions err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Unable to load transactions")
		return
	}
	h.writeJSON(w, http.StatusOK, transactions)
}

// ListAccountsHandler handles GET /bank-accounts and returns the caller's own accounts.
func (h *Handlers) ListAccountsHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Could not get actor from context")
		return
	}

	accounts, err := h.ledger.AccountsOfOwner(r.Context(), actor.ID)
	if err != nil {
		log.Printf("level=error component=api endpoint=list_accounts actor_id=%s err=%v", actor.ID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to load bank accounts")
		return
	}
	h.writeJSON(w, http.StatusOK, accounts)
}

// GetAccountHandler handles GET /bank-accounts/{id}.
func (h *Handlers) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	account, ok := h.readableAccount(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, account)
}

// ListAccountTransactionsHandler handles GET /bank-accounts/{id}/transactions.
func (h *Handlers) ListAccountTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	account, ok := h.readableAccount(w, r)
	if !ok {
		return
	}

	limit, offset, ok := h.pagination(w, r)
	if !ok {
		return
	}

	history, err := h.ledger.AccountHistory(r.Context(), account.ID, limit, offset)
	if err != nil {
		log.Printf("level=error component=api endpoint=list_account_transactions account_id=%d err=%v", account.ID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to load transactions")
		return
	}
	h.writeJSON(w, http.StatusOK, history)
}

// pagination reads the optional limit and offset query parameters.
func (h *Handlers) pagination(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	q := r.URL.Query()
	for _, param := range []struct {
		name string
		dst  *int
	}{{"limit", &limit}, {"offset", &offset}} {
		raw := q.Get(param.name)
		if raw == "" {
			continue
		}
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			h.writeError(w, http.StatusBadRequest, param.name+" must be a non-negative integer")
			return 0, 0, false
		}
		*param.dst = value
	}
	return limit, offset, true
}

func (h *Handlers) readableAccount(w http.ResponseWriter, r *http.Request) (domain.Account, bool) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Could not get actor from context")
		return domain.Account{}, false
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid bank account id")
		return domain.Account{}, false
	}

	account, err := h.ledger.FindAccountByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			h.writeError(w, http.StatusNotFound, "Bank account doesn't exist")
			return domain.Account{}, false
		}
		log.Printf("level=error component=api msg=\"account lookup failed\" account_id=%d err=%v", id, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to load bank account")
		return domain.Account{}, false
	}
	if !CanReadAccount(actor, account) {
		h.writeError(w, http.StatusForbidden, "Not allowed to view this bank account")
		return domain.Account{}, false
	}
	return account, true
}

// writeTransferError maps engine error kinds to responses.
func (h *Handlers) writeTransferError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrSourceAccountNotFound):
		h.writeError(w, http.StatusBadRequest, "Source bank account doesn't exist")
	case errors.Is(err, domain.ErrDestinationAccountNotFound):
		h.writeError(w, http.StatusBadRequest, "Destination bank account doesn't exist")
	case errors.Is(err, domain.ErrNotEnoughBalance):
		h.writeError(w, http.StatusBadRequest, "Not enough balance")
	case errors.Is(err, domain.ErrUnsupportedCurrency):
		h.writeError(w, http.StatusBadRequest, "Currency is not supported")
	case errors.Is(err, domain.ErrAccountClosed):
		h.writeError(w, http.StatusConflict, "Bank account is closed")
	case errors.Is(err, domain.ErrInvalidAmount):
		h.writeJSON(w, http.StatusUnprocessableEntity, validationErrorResponse{
			Error:  "validation failed",
			Fields: map[string]string{"amount": "amount does not fit the source account currency"},
		})
	case errors.Is(err, domain.ErrRateNotFound):
		h.writeError(w, http.StatusServiceUnavailable, "Exchange rate is not available")
	default:
		h.writeError(w, http.StatusInternalServerError, "Unable to process transfer")
	}
}

// writeJSON is a helper for writing JSON responses.
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
