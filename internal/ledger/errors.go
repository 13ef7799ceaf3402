package ledger

import "errors"

var (
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrInvalidAmount       = errors.New("amount must be greater than zero")
	ErrMethodNotFound      = errors.New("withdrawal method not found")
	ErrUnauthorized        = errors.New("not allowed to perform this action")
	ErrAlreadyTerminal     = errors.New("record is already in a terminal state")
	ErrGatewayUnavailable  = errors.New("payment gateway unavailable")
	ErrGatewayTimeout      = errors.New("payment gateway timed out")
	ErrDuplicateProcessing = errors.New("already processed")
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrNotFound            = errors.New("record not found")
)
