package handler

import (
	"net/http"

	"github.com/cradoe/songbid/internal/bulk"
	"github.com/cradoe/songbid/internal/context"
	"github.com/cradoe/songbid/internal/errHandler"
	"github.com/cradoe/songbid/internal/request"
	"github.com/cradoe/songbid/internal/response"
	"github.com/cradoe/songbid/internal/validator"
)

type BulkHandler struct {
	Operator   *bulk.Operator
	ErrHandler *errHandler.ErrorRepository
}

func NewBulkHandler(handler *BulkHandler) *BulkHandler {
	return &BulkHandler{
		Operator:   handler.Operator,
		ErrHandler: handler.ErrHandler,
	}
}

func (h *BulkHandler) HandleBidsBulk(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, bulk.TargetBids)
}

func (h *BulkHandler) HandleWithdrawalsBulk(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, bulk.TargetWithdrawals)
}

// apply answers 200 even when some items failed; the per-item results say
// which ones.
func (h *BulkHandler) apply(w http.ResponseWriter, r *http.Request, target bulk.Target) {
	var input struct {
		IDs       []string            `json:"ids"`
		Action    string              `json:"action"`
		Reason    string              `json:"reason"`
		Validator validator.Validator `json:"-"`
	}

	err := request.DecodeJSON(w, r, &input)
	if err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	input.Validator.Check(len(input.IDs) > 0, "At least one id is required")
	input.Validator.Check(len(input.IDs) <= bulk.MaxItems, "Too many ids in one request")
	input.Validator.Check(validator.PermittedValue(input.Action, bulk.Actions(target)...), "Unsupported action")
	input.Validator.Check(validator.MaxRunes(input.Reason, maxReasonRunes), "Reason is too long")
	if target == bulk.TargetWithdrawals && input.Action == bulk.ActionReject {
		input.Validator.Check(validator.NotBlank(input.Reason), "Reason is required")
	}

	if input.Validator.HasErrors() {
		h.ErrHandler.FailedValidation(w, r, input.Validator.Errors)
		return
	}

	result, err := h.Operator.Apply(r.Context(), context.ContextGetActor(r), target, input.IDs, input.Action, input.Reason)
	if err != nil {
		h.ErrHandler.LedgerError(w, r, err)
		return
	}

	err = response.JSONOkResponse(w, result, "Bulk action processed", nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}
