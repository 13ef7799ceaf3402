// Package gateway describes the mobile-money provider the payment engine
// talks to. Implementations live in sub-packages.
package gateway

import (
	"context"

	"github.com/shopspring/decimal"
)

const (
	StatusSuccess    = "success"
	StatusFailed     = "failed"
	StatusProcessing = "processing"
)

type PushRequest struct {
	Phone     string
	Amount    decimal.Decimal
	Reference string
}

type PushResult struct {
	CorrelationID string
	Message       string
}

type QueryResult struct {
	Status string
	Reason string
}

// Gateway pushes a payment prompt to a phone and reports its outcome.
// Transport failures wrap ledger.ErrGatewayUnavailable or ledger.ErrGatewayTimeout.
type Gateway interface {
	Push(ctx context.Context, req PushRequest) (*PushResult, error)
	Query(ctx context.Context, correlationID string) (*QueryResult, error)
}
