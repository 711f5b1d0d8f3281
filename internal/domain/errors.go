package domain

import (
	"errors"
	"fmt"
)

// ErrorCode is a stable machine-readable failure code. Callers branch on the
// code, never on message text.
type ErrorCode string

const (
	CodeProofGeneration        ErrorCode = "PROOF_GENERATION_ERROR"
	CodeMarketNotFound         ErrorCode = "MARKET_NOT_FOUND"
	CodeInvalidPosition        ErrorCode = "INVALID_POSITION"
	CodeMarketNotActive        ErrorCode = "MARKET_NOT_ACTIVE"
	CodeMarketEnded            ErrorCode = "MARKET_ENDED"
	CodeMarketNotResolved      ErrorCode = "MARKET_NOT_RESOLVED"
	CodePositionLost           ErrorCode = "POSITION_LOST"
	CodePositionAlreadyClaimed ErrorCode = "POSITION_ALREADY_CLAIMED"
	CodeInvalidMarket          ErrorCode = "INVALID_MARKET"
	CodeBatchRejected          ErrorCode = "BATCH_REJECTED"
	CodeInvalidTransition      ErrorCode = "INVALID_TRANSITION"
	CodeLedger                 ErrorCode = "LEDGER_ERROR"
)

// retryable codes cover transient failures (connectivity, proof oracle).
// Everything else is a logical or validation failure and retrying cannot
// change the result.
var retryable = map[ErrorCode]bool{
	CodeProofGeneration: true,
	CodeLedger:          true,
}

// Error is the coded failure type every layer surfaces to callers. Lower
// layer errors (ledger, proof oracle) are always wrapped into one of these
// before leaving their package; raw transport errors never escape.
type Error struct {
	Code    ErrorCode
	Message string
	Details map[string]any
	Err     error
}

// NewError builds a coded error wrapping an optional cause.
func NewError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// WithDetail attaches a structured detail field and returns the error for
// chaining.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is match two coded errors by code, so sentinel-style
// comparisons like errors.Is(err, domain.NewError(CodeMarketEnded, ...))
// work without pointer identity.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// CodeOf extracts the stable code from err, or empty when err carries none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsRetryable reports whether the failure is transient (connectivity, proof
// generation) as opposed to logical/validation.
func IsRetryable(err error) bool {
	return retryable[CodeOf(err)]
}

// Sentinels for low-level infrastructure failures, wrapped into coded errors
// before they reach a caller outside their package.
var (
	ErrNotFound    = errors.New("not found")
	ErrLockHeld    = errors.New("lock already held")
	ErrContextDone = errors.New("context cancelled")
)
