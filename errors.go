package paidquiz

import (
	"errors"
	"fmt"
)

// ErrorKind is the stable, user-visible classification of a failure.
type ErrorKind string

const (
	KindPaymentNotVerified   ErrorKind = "PAYMENT_NOT_VERIFIED"
	KindGenerationFailed     ErrorKind = "GENERATION_FAILED"
	KindInvalidQuestionIndex ErrorKind = "INVALID_QUESTION_INDEX"
	KindInvalidAnswer        ErrorKind = "INVALID_ANSWER"
	KindInvalidRequest       ErrorKind = "INVALID_REQUEST"
	KindSessionNotActive     ErrorKind = "SESSION_NOT_ACTIVE"
	KindSessionNotFound      ErrorKind = "SESSION_NOT_FOUND"
	KindInsufficientBalance  ErrorKind = "INSUFFICIENT_BALANCE"
	KindDuplicateSettlement  ErrorKind = "DUPLICATE_SETTLEMENT"
	KindDuplicateReference   ErrorKind = "DUPLICATE_REFERENCE"
	KindUserNotFound         ErrorKind = "USER_NOT_FOUND"
	KindTransactionNotFound  ErrorKind = "TRANSACTION_NOT_FOUND"
	KindStorage              ErrorKind = "STORAGE_ERROR"
)

// Error is the failure type returned by the engine. Message is safe to show
// to users; Detail and Err are internal diagnostics.
type Error struct {
	Kind    ErrorKind
	Message string
	Detail  string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the sentinels below work with
// errors.Is regardless of message or detail.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrPaymentNotVerified   = &Error{Kind: KindPaymentNotVerified, Message: "payment not verified"}
	ErrGenerationFailed     = &Error{Kind: KindGenerationFailed, Message: "question generation failed"}
	ErrInvalidQuestionIndex = &Error{Kind: KindInvalidQuestionIndex, Message: "invalid question index"}
	ErrInvalidAnswer        = &Error{Kind: KindInvalidAnswer, Message: "answer must be one of A, B, C, D"}
	ErrInvalidRequest       = &Error{Kind: KindInvalidRequest, Message: "invalid request"}
	ErrSessionNotActive     = &Error{Kind: KindSessionNotActive, Message: "session is not active"}
	ErrSessionNotFound      = &Error{Kind: KindSessionNotFound, Message: "session not found"}
	ErrInsufficientBalance  = &Error{Kind: KindInsufficientBalance, Message: "insufficient balance"}
	ErrDuplicateSettlement  = &Error{Kind: KindDuplicateSettlement, Message: "session already settled"}
	ErrDuplicateReference   = &Error{Kind: KindDuplicateReference, Message: "payment reference already used"}
	ErrUserNotFound         = &Error{Kind: KindUserNotFound, Message: "user not found"}
	ErrTransactionNotFound  = &Error{Kind: KindTransactionNotFound, Message: "transaction not found"}
	ErrStorage              = &Error{Kind: KindStorage, Message: "storage error"}
)

func newError(sentinel *Error, detail string, cause error) *Error {
	return &Error{
		Kind:    sentinel.Kind,
		Message: sentinel.Message,
		Detail:  detail,
		Err:     cause,
	}
}

func generationFailed(cause error, format string, args ...interface{}) *Error {
	return newError(ErrGenerationFailed, fmt.Sprintf(format, args...), cause)
}

func storageError(cause error, format string, args ...interface{}) *Error {
	return newError(ErrStorage, fmt.Sprintf(format, args...), cause)
}

// KindOf reports the kind of err, or an empty kind for foreign errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// PublicError is the user-visible rendering of an engine failure.
type PublicError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Detail  string    `json:"detail,omitempty"`
}

// Public converts err to its user-visible form. Internal detail is only
// included in development mode.
func Public(err error, devMode bool) PublicError {
	var e *Error
	if !errors.As(err, &e) {
		pub := PublicError{Kind: KindStorage, Message: "internal error"}
		if devMode {
			pub.Detail = err.Error()
		}
		return pub
	}

	pub := PublicError{Kind: e.Kind, Message: e.Message}
	if devMode {
		pub.Detail = e.Error()
	}
	return pub
}
