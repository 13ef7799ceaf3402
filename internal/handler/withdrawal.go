package handler

import (
	"net/http"
	"time"

	"github.com/cradoe/songbid/internal/context"
	"github.com/cradoe/songbid/internal/errHandler"
	"github.com/cradoe/songbid/internal/models"
	"github.com/cradoe/songbid/internal/repository"
	"github.com/cradoe/songbid/internal/request"
	"github.com/cradoe/songbid/internal/response"
	"github.com/cradoe/songbid/internal/validator"
	"github.com/cradoe/songbid/internal/withdrawal"
	"github.com/shopspring/decimal"
)

const maxReasonRunes = 500

type WithdrawalResponseData struct {
	ID          string          `json:"withdrawal_id"`
	UserID      string          `json:"user_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	MethodID    string          `json:"method_id"`
	Status      string          `json:"status"`
	Reference   string          `json:"reference"`
	Reason      string          `json:"reason,omitempty"`
	ProcessedBy string          `json:"processed_by,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

type WithdrawalHandler struct {
	Withdrawals *withdrawal.Service
	ErrHandler  *errHandler.ErrorRepository
}

func NewWithdrawalHandler(handler *WithdrawalHandler) *WithdrawalHandler {
	return &WithdrawalHandler{
		Withdrawals: handler.Withdrawals,
		ErrHandler:  handler.ErrHandler,
	}
}

// HandleWithdrawalCreate holds the requested amount until an admin approves or
// rejects the request.
func (h *WithdrawalHandler) HandleWithdrawalCreate(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Amount        decimal.Decimal     `json:"amount"`
		MethodID      string              `json:"method_id"`
		MethodIDCamel string              `json:"methodId"`
		Currency      string              `json:"currency"`
		Validator     validator.Validator `json:"-"`
	}

	err := request.DecodeJSON(w, r, &input)
	if err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	if input.MethodID == "" {
		input.MethodID = input.MethodIDCamel
	}

	if input.Currency == "" {
		input.Currency = repository.DefaultCurrency
	}

	input.Validator.Check(validator.IsPositive(input.Amount), "Amount must be greater than zero")
	input.Validator.Check(validator.MaxDecimalPlaces(input.Amount, amountPlaces), "Amount can have at most two decimal places")
	input.Validator.Check(validator.NotBlank(input.MethodID), "Withdrawal method is required")
	input.Validator.Check(validator.IsCurrency(input.Currency), "Currency must be an ISO 4217 code")
	input.Validator.Check(input.Currency == repository.DefaultCurrency, "Withdrawals are only paid out in "+repository.DefaultCurrency)

	if input.Validator.HasErrors() {
		h.ErrHandler.FailedValidation(w, r, input.Validator.Errors)
		return
	}

	actor := context.ContextGetActor(r)

	wr, err := h.Withdrawals.Request(r.Context(), actor, withdrawal.Request{
		UserID:   actor.ID,
		Amount:   input.Amount,
		MethodID: input.MethodID,
		Currency: input.Currency,
	})
	if err != nil {
		h.ErrHandler.LedgerError(w, r, err)
		return
	}

	err = response.JSONCreatedResponse(w, withdrawalResponse(wr), "Withdrawal request submitted")
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

func (h *WithdrawalHandler) HandleUserWithdrawals(w http.ResponseWriter, r *http.Request) {
	actor := context.ContextGetActor(r)
	query := retrieveUrlQueryValues(r)

	withdrawals, err := h.Withdrawals.ListByUser(r.Context(), actor, actor.ID, query.Limit, query.Offset)
	if err != nil {
		h.ErrHandler.LedgerError(w, r, err)
		return
	}

	h.writeList(w, r, withdrawals)
}

func (h *WithdrawalHandler) HandleAdminWithdrawals(w http.ResponseWriter, r *http.Request) {
	query := retrieveUrlQueryValues(r)
	if query.Status == "" {
		query.Status = models.WithdrawalStatusPending
	}

	if !validator.PermittedValue(query.Status,
		models.WithdrawalStatusPending, models.WithdrawalStatusApproved,
		models.WithdrawalStatusRejected, models.WithdrawalStatusCompleted) {
		h.ErrHandler.FailedValidation(w, r, []string{"Unknown withdrawal status"})
		return
	}

	withdrawals, err := h.Withdrawals.ListByStatus(r.Context(), context.ContextGetActor(r), query.Status, query.Limit, query.Offset)
	if err != nil {
		h.ErrHandler.LedgerError(w, r, err)
		return
	}

	h.writeList(w, r, withdrawals)
}

func (h *WithdrawalHandler) HandleWithdrawalApprove(w http.ResponseWriter, r *http.Request) {
	wr, err := h.Withdrawals.Approve(r.Context(), context.ContextGetActor(r), r.PathValue("id"))
	if err != nil {
		h.ErrHandler.LedgerError(w, r, err)
		return
	}

	err = response.JSONOkResponse(w, withdrawalResponse(wr), "Withdrawal approved", nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

func (h *WithdrawalHandler) HandleWithdrawalReject(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Reason    string              `json:"reason"`
		Validator validator.Validator `json:"-"`
	}

	err := request.DecodeJSON(w, r, &input)
	if err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	input.Validator.Check(validator.NotBlank(input.Reason), "Reason is required")
	input.Validator.Check(validator.MaxRunes(input.Reason, maxReasonRunes), "Reason is too long")

	if input.Validator.HasErrors() {
		h.ErrHandler.FailedValidation(w, r, input.Validator.Errors)
		return
	}

	wr, err := h.Withdrawals.Reject(r.Context(), context.ContextGetActor(r), r.PathValue("id"), input.Reason)
	if err != nil {
		h.ErrHandler.LedgerError(w, r, err)
		return
	}

	err = response.JSONOkResponse(w, withdrawalResponse(wr), "Withdrawal rejected", nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

func (h *WithdrawalHandler) HandleWithdrawalComplete(w http.ResponseWriter, r *http.Request) {
	wr, err := h.Withdrawals.Complete(r.Context(), context.ContextGetActor(r), r.PathValue("id"))
	if err != nil {
		h.ErrHandler.LedgerError(w, r, err)
		return
	}

	err = response.JSONOkResponse(w, withdrawalResponse(wr), "Withdrawal marked as paid out", nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

func (h *WithdrawalHandler) writeList(w http.ResponseWriter, r *http.Request, withdrawals []models.WithdrawalRequest) {
	data := make([]*WithdrawalResponseData, len(withdrawals))
	for i := range withdrawals {
		data[i] = withdrawalResponse(&withdrawals[i])
	}

	err := response.JSONOkResponse(w, data, "Withdrawals retrieved successfully", nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

func withdrawalResponse(wr *models.WithdrawalRequest) *WithdrawalResponseData {
	return &WithdrawalResponseData{
		ID:          wr.ID,
		UserID:      wr.UserID,
		Amount:      wr.Amount,
		Currency:    wr.Currency,
		MethodID:    wr.WithdrawalMethodID,
		Status:      wr.Status,
		Reference:   wr.Reference,
		Reason:      wr.Reason,
		ProcessedBy: wr.ProcessedBy,
		CreatedAt:   wr.CreatedAt,
		ProcessedAt: optionalTime(wr.ProcessedAt.Valid, wr.ProcessedAt.Time),
		CompletedAt: optionalTime(wr.CompletedAt.Valid, wr.CompletedAt.Time),
	}
}
