package invoicing

import (
	"errors"
	"fmt"
)

// Kind classifies an engine error for callers deciding whether to resubmit.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindBadRequest
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindBadRequest:
		return "bad_request"
	case KindForbidden:
		return "forbidden"
	default:
		return "internal"
	}
}

var (
	// ErrInsufficientStock is returned when a sale would drive a product's stock below zero.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrInvalidState is returned when an operation is not allowed in the invoice's current status.
	ErrInvalidState = errors.New("invalid invoice state")

	// ErrQuotaExceeded is returned when the tenant reached its monthly document limit.
	ErrQuotaExceeded = errors.New("monthly document limit reached")

	// ErrWarehouseAccess is returned when a non-admin user writes outside its assigned warehouse.
	ErrWarehouseAccess = errors.New("warehouse not assigned to user")

	// ErrNoResult is returned when a committed transaction yields no row to return.
	ErrNoResult = errors.New("operation produced no result")
)

// Error carries the kind, the failing operation and a caller-facing message.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// NotFound reports an absent entity, or one that belongs to another tenant.
func NotFound(format string, args ...any) *Error {
	return newError(KindNotFound, nil, format, args...)
}

// BadRequest reports an invalid input or state transition.
func BadRequest(format string, args ...any) *Error {
	return newError(KindBadRequest, nil, format, args...)
}

// Forbidden reports a quota or permission refusal.
func Forbidden(format string, args ...any) *Error {
	return newError(KindForbidden, nil, format, args...)
}

// KindOf returns the Kind of err, KindInternal for errors not raised by the engine.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// withOp stamps the operation name on engine errors and wraps everything else.
func withOp(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Op == "" {
			e.Op = op
		}
		return e
	}
	return fmt.Errorf("%s: %w", op, err)
}

func insufficientStock(name, productID string, available, requested int) *Error {
	return newError(KindBadRequest, ErrInsufficientStock,
		"insufficient stock for product %q (%s): available %d, requested %d", name, productID, available, requested)
}

func invalidState(format string, args ...any) *Error {
	return newError(KindBadRequest, ErrInvalidState, format, args...)
}
