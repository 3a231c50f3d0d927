package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation and transport mapping.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindPolicy     Kind = "policy_violation"
	KindConflict   Kind = "conflict"
	KindExternal   Kind = "external_service"
	KindInternal   Kind = "internal"
)

// Reason codes carried by policy and conflict errors.
const (
	ReasonNotDelivered            = "not_delivered"
	ReasonWindowExpired           = "window_expired"
	ReasonAlreadyRequested        = "already_requested"
	ReasonInvalidTransition       = "invalid_transition"
	ReasonProductUnavailable      = "product_unavailable"
	ReasonQuantityOutOfRange      = "quantity_out_of_range"
	ReasonInsufficientStock       = "insufficient_stock"
	ReasonStaleVersion            = "stale_version"
	ReasonPaymentNotVerified      = "payment_not_verified"
	ReasonPaymentMethodMismatch   = "payment_method_mismatch"
	ReasonRefundExists            = "refund_exists"
	ReasonInvalidRefundTransition = "invalid_refund_transition"
	ReasonAmountMismatch          = "amount_mismatch"
	ReasonGatewayUnverified       = "gateway_unverified"
	ReasonNotOwner                = "not_owner"
	ReasonNotRefundable           = "not_refundable"
)

// Error is the application error type. Op names the operation that failed
// (e.g. "order.create") and is meant for logs, Message is safe to show callers.
type Error struct {
	Kind    Kind
	Reason  string
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Reason != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Reason)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Kind and Reason so sentinel-style comparisons work:
//
//	errors.Is(err, &apperr.Error{Kind: apperr.KindPolicy, Reason: apperr.ReasonWindowExpired})
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != "" && t.Kind != e.Kind {
		return false
	}
	if t.Reason != "" && t.Reason != e.Reason {
		return false
	}
	return t.Kind != "" || t.Reason != ""
}

func Validation(op, format string, args ...any) error {
	return &Error{Kind: KindValidation, Op: op, Message: fmt.Sprintf(format, args...)}
}

// NotFound builds a not-found error, e.g. NotFound("order.get", "order", "ORD-20240101-...").
func NotFound(op, resource, identifier string) error {
	return &Error{
		Kind:    KindNotFound,
		Op:      op,
		Message: fmt.Sprintf("%s not found: %s", resource, identifier),
	}
}

func Policy(op, reason, format string, args ...any) error {
	return &Error{Kind: KindPolicy, Reason: reason, Op: op, Message: fmt.Sprintf(format, args...)}
}

func Conflict(op, reason, format string, args ...any) error {
	return &Error{Kind: KindConflict, Reason: reason, Op: op, Message: fmt.Sprintf(format, args...)}
}

func External(err error, op, message string) error {
	return &Error{Kind: KindExternal, Op: op, Message: message, Err: err}
}

func Internal(err error, op, message string) error {
	return &Error{Kind: KindInternal, Op: op, Message: message, Err: err}
}

// KindOf returns the Kind of err, KindInternal for foreign errors and "" for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// ReasonOf returns the reason code of err, or "".
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}

// MessageOf returns a caller-safe message. Internal and unknown errors are masked.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Message
	}
	return "An internal error occurred. Please try again later."
}

// IsKind reports whether err has the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
