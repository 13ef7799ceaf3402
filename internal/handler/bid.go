package handler

import (
	"net/http"
	"time"

	"github.com/cradoe/songbid/internal/bid"
	"github.com/cradoe/songbid/internal/context"
	"github.com/cradoe/songbid/internal/errHandler"
	"github.com/cradoe/songbid/internal/request"
	"github.com/cradoe/songbid/internal/response"
	"github.com/cradoe/songbid/internal/validator"
	"github.com/shopspring/decimal"
)

type BidResponseData struct {
	ID        string          `json:"id"`
	SongRef   string          `json:"song_ref"`
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

type BidHandler struct {
	Bids       *bid.Service
	ErrHandler *errHandler.ErrorRepository
}

func NewBidHandler(handler *BidHandler) *BidHandler {
	return &BidHandler{
		Bids:       handler.Bids,
		ErrHandler: handler.ErrHandler,
	}
}

// HandleBidCreate debits the bid amount from the caller's wallet.
func (h *BidHandler) HandleBidCreate(w http.ResponseWriter, r *http.Request) {
	var input struct {
		SongRef      string              `json:"song_ref"`
		SongRefCamel string              `json:"songRef"`
		Amount       decimal.Decimal     `json:"amount"`
		Validator    validator.Validator `json:"-"`
	}

	err := request.DecodeJSON(w, r, &input)
	if err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	if input.SongRef == "" {
		input.SongRef = input.SongRefCamel
	}

	input.Validator.Check(validator.NotBlank(input.SongRef), "Song is required")
	input.Validator.Check(validator.MaxRunes(input.SongRef, 255), "Song reference is too long")
	input.Validator.Check(validator.IsPositive(input.Amount), "Amount must be greater than zero")
	input.Validator.Check(validator.MaxDecimalPlaces(input.Amount, amountPlaces), "Amount can have at most two decimal places")

	if input.Validator.HasErrors() {
		h.ErrHandler.FailedValidation(w, r, input.Validator.Errors)
		return
	}

	actor := context.ContextGetActor(r)

	b, err := h.Bids.Create(r.Context(), actor, actor.ID, input.SongRef, input.Amount)
	if err != nil {
		h.ErrHandler.LedgerError(w, r, err)
		return
	}

	data := &BidResponseData{
		ID:        b.ID,
		SongRef:   b.SongRef,
		Amount:    b.Amount,
		Status:    b.Status,
		CreatedAt: b.CreatedAt,
	}

	err = response.JSONCreatedResponse(w, data, "Bid placed")
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}
