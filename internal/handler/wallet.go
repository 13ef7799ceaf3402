package handler

import (
	dctx "context"
	"net/http"
	"time"

	"github.com/cradoe/songbid/internal/context"
	"github.com/cradoe/songbid/internal/errHandler"
	"github.com/cradoe/songbid/internal/helper"
	"github.com/cradoe/songbid/internal/ledger"
	"github.com/cradoe/songbid/internal/models"
	"github.com/cradoe/songbid/internal/payment"
	"github.com/cradoe/songbid/internal/policy"
	"github.com/cradoe/songbid/internal/request"
	"github.com/cradoe/songbid/internal/response"
	"github.com/cradoe/songbid/internal/validator"
	"github.com/shopspring/decimal"
)

// Top-up statuses as the client sees them.
const (
	TopUpStatusPending   = "pending"
	TopUpStatusCompleted = "completed"
	TopUpStatusFailed    = "failed"
)

type WalletResponseData struct {
	Balance         decimal.Decimal `json:"balance"`
	PendingEarnings decimal.Decimal `json:"pending_earnings"`
	Reserved        decimal.Decimal `json:"reserved"`
	Available       decimal.Decimal `json:"available"`
	Currency        string          `json:"currency"`
}

type LedgerEntryResponseData struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	Status       string          `json:"status"`
	RelatedID    string          `json:"related_id"`
	Description  string          `json:"description"`
	CreatedAt    time.Time       `json:"created_at"`
}

type TopUpResponseData struct {
	CorrelationID string          `json:"correlation_id"`
	Reference     string          `json:"reference"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Status        string          `json:"status"`
	Detail        string          `json:"detail"`
	FailureReason string          `json:"failure_reason,omitempty"`
	Delayed       bool            `json:"delayed,omitempty"`
}

type WalletHandler struct {
	Ledger      *ledger.Service
	Payments    *payment.Engine
	Helper      *helper.HelperRepository
	ErrHandler  *errHandler.ErrorRepository
	WatchPolicy payment.Policy

	// Ctx bounds the background watchers started for new top-ups. It is
	// cancelled on shutdown.
	Ctx dctx.Context
}

func NewWalletHandler(handler *WalletHandler) *WalletHandler {
	ctx := handler.Ctx
	if ctx == nil {
		ctx = dctx.Background()
	}

	return &WalletHandler{
		Ledger:      handler.Ledger,
		Payments:    handler.Payments,
		Helper:      handler.Helper,
		ErrHandler:  handler.ErrHandler,
		WatchPolicy: handler.WatchPolicy,
		Ctx:         ctx,
	}
}

func (h *WalletHandler) HandleWalletBalance(w http.ResponseWriter, r *http.Request) {
	user := context.ContextGetAuthenticatedUser(r)

	wallet, err := h.Ledger.Balance(r.Context(), user.ID)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	data := &WalletResponseData{
		Balance:         wallet.Balance,
		PendingEarnings: wallet.PendingEarnings,
		Reserved:        wallet.Reserved,
		Available:       wallet.Available(),
		Currency:        wallet.Currency,
	}

	err = response.JSONOkResponse(w, data, "Balance fetched successfully", nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

func (h *WalletHandler) HandleWalletEntries(w http.ResponseWriter, r *http.Request) {
	user := context.ContextGetAuthenticatedUser(r)
	query := retrieveUrlQueryValues(r)

	entries, err := h.Ledger.Entries(r.Context(), user.ID, query.Limit, query.Offset)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	data := make([]*LedgerEntryResponseData, len(entries))
	for i, entry := range entries {
		data[i] = &LedgerEntryResponseData{
			ID:           entry.ID,
			Type:         entry.Type,
			Amount:       entry.Amount,
			BalanceAfter: entry.BalanceAfter,
			Status:       entry.Status,
			RelatedID:    entry.RelatedID,
			Description:  entry.Description,
			CreatedAt:    entry.CreatedAt,
		}
	}

	err = response.JSONOkResponse(w, data, "Wallet entries retrieved successfully", nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

// HandleTopUp pushes a payment prompt to the user's phone. The wallet is only
// credited once the gateway confirms; a background watcher polls for that so
// the payment resolves even if the client never asks again.
func (h *WalletHandler) HandleTopUp(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Phone     string              `json:"phone"`
		Amount    decimal.Decimal     `json:"amount"`
		Validator validator.Validator `json:"-"`
	}

	err := request.DecodeJSON(w, r, &input)
	if err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	input.Validator.Check(validator.NotBlank(input.Phone), "Phone number is required")
	input.Validator.Check(validator.Matches(input.Phone, validator.RgxPhoneNumber), "Phone number must be in international format, e.g. 254712345678")
	input.Validator.Check(validator.IsPositive(input.Amount), "Amount must be greater than zero")
	input.Validator.Check(input.Amount.IsInteger(), "Mobile money top-ups must be whole amounts")
	input.Validator.Check(input.Amount.LessThanOrEqual(payment.MaxTopUpAmount), "Amount exceeds the "+payment.MaxTopUpAmount.String()+" top-up limit")

	if input.Validator.HasErrors() {
		h.ErrHandler.FailedValidation(w, r, input.Validator.Errors)
		return
	}

	actor := context.ContextGetActor(r)

	p, err := h.Payments.InitiateTopUp(r.Context(), actor, actor.ID, input.Amount, input.Phone)
	if err != nil {
		h.ErrHandler.LedgerError(w, r, err)
		return
	}

	correlationID := p.CorrelationID
	h.Helper.BackgroundTask(r, func() error {
		res := h.Payments.Watch(h.Ctx, correlationID, h.WatchPolicy)
		if res.Outcome == payment.OutcomeError {
			return res.Err
		}
		return nil
	})

	err = response.JSONCreatedResponse(w, topUpResponse(p), "Payment prompt sent to your phone")
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

// HandleTopUpStatus asks the gateway about a pending top-up. A gateway outage
// is reported as a delayed pending payment instead of an error.
func (h *WalletHandler) HandleTopUpStatus(w http.ResponseWriter, r *http.Request) {
	correlationID := r.URL.Query().Get("correlation_id")
	if correlationID == "" {
		correlationID = r.URL.Query().Get("correlationId")
	}
	if correlationID == "" {
		h.ErrHandler.FailedValidation(w, r, []string{"Correlation ID is required"})
		return
	}

	actor := context.ContextGetActor(r)

	p, err := h.Payments.CheckStatus(r.Context(), actor, correlationID)
	if err != nil && payment.IsTransient(err) {
		data := &TopUpResponseData{
			CorrelationID: correlationID,
			Status:        TopUpStatusPending,
			Detail:        models.PaymentStatusPending,
			Delayed:       true,
		}

		err = response.JSONOkResponse(w, data, "Payment confirmation is delayed", nil)
		if err != nil {
			h.ErrHandler.ServerError(w, r, err)
		}
		return
	}
	if err != nil {
		h.ErrHandler.LedgerError(w, r, err)
		return
	}

	err = response.JSONOkResponse(w, topUpResponse(p), "Payment status retrieved", nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

func (h *WalletHandler) HandleTopUpCancel(w http.ResponseWriter, r *http.Request) {
	var input struct {
		CorrelationID      string              `json:"correlation_id"`
		CorrelationIDCamel string              `json:"correlationId"`
		Validator          validator.Validator `json:"-"`
	}

	err := request.DecodeJSON(w, r, &input)
	if err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	if input.CorrelationID == "" {
		input.CorrelationID = input.CorrelationIDCamel
	}

	input.Validator.Check(validator.NotBlank(input.CorrelationID), "Correlation ID is required")
	if input.Validator.HasErrors() {
		h.ErrHandler.FailedValidation(w, r, input.Validator.Errors)
		return
	}

	p, err := h.Payments.Cancel(r.Context(), context.ContextGetActor(r), input.CorrelationID)
	if err != nil {
		h.ErrHandler.LedgerError(w, r, err)
		return
	}

	err = response.JSONOkResponse(w, topUpResponse(p), "Payment cancelled", nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

// HandleWalletReconcile compares a wallet's stored balance with its ledger.
func (h *WalletHandler) HandleWalletReconcile(w http.ResponseWriter, r *http.Request) {
	if err := policy.Authorize(context.ContextGetActor(r), policy.ActionAudit, ""); err != nil {
		h.ErrHandler.LedgerError(w, r, err)
		return
	}

	result, err := h.Ledger.Reconcile(r.Context(), r.PathValue("userId"))
	if err != nil {
		h.ErrHandler.LedgerError(w, r, err)
		return
	}

	message := "Wallet is consistent with its ledger"
	if !result.Consistent {
		message = "Wallet balance does not match its ledger"
	}

	err = response.JSONOkResponse(w, result, message, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

func topUpResponse(p *models.PendingPayment) *TopUpResponseData {
	return &TopUpResponseData{
		CorrelationID: p.CorrelationID,
		Reference:     p.Reference,
		Amount:        p.Amount,
		Currency:      p.Currency,
		Status:        publicTopUpStatus(p.Status),
		Detail:        p.Status,
		FailureReason: p.FailureReason,
	}
}

func publicTopUpStatus(status string) string {
	switch status {
	case models.PaymentStatusCompleted:
		return TopUpStatusCompleted
	case models.PaymentStatusFailed, models.PaymentStatusCancelled, models.PaymentStatusExpired:
		return TopUpStatusFailed
	default:
		return TopUpStatusPending
	}
}
