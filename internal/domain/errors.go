package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for the calling transport.
type Kind string

const (
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindNotFound     Kind = "not_found"
	KindBadRequest   Kind = "bad_request"
	KindValidation   Kind = "validation"
	KindConflict     Kind = "conflict"
	KindInternal     Kind = "internal"
)

const (
	CodeSelectTable             = "SelectTable"
	CodeTableAlreadyOccupied    = "TableAlreadyOccupied"
	CodeInvalidAction           = "InvalidAction"
	CodeInvalidActionWithStatus = "InvalidActionWithStatus"
	CodeOutOfStock              = "OutOfStock"
	CodeNotFound                = "NotFound"
	CodeNoItems                 = "NoItems"
	CodeNoBillableItems         = "NoBillableItems"
	CodeRequired                = "Required"
	CodeInvalid                 = "Invalid"
	CodeSequenceExhausted       = "SequenceExhausted"
	CodeConcurrentUpdate        = "ConcurrentUpdate"
	CodeStorage                 = "Storage"
	CodeForbidden               = "Forbidden"
	CodeUnauthorized            = "Unauthorized"
)

// Error is the typed failure returned by every workflow operation.
type Error struct {
	Kind    Kind
	Code    string
	Field   string // set for KindValidation
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind, and by code when the target carries one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

var (
	ErrUnauthorized            = &Error{Kind: KindUnauthorized, Code: CodeUnauthorized}
	ErrForbidden               = &Error{Kind: KindForbidden, Code: CodeForbidden}
	ErrNotFound                = &Error{Kind: KindNotFound}
	ErrValidation              = &Error{Kind: KindValidation}
	ErrConflict                = &Error{Kind: KindConflict}
	ErrSelectTable             = &Error{Kind: KindBadRequest, Code: CodeSelectTable}
	ErrTableAlreadyOccupied    = &Error{Kind: KindBadRequest, Code: CodeTableAlreadyOccupied}
	ErrInvalidAction           = &Error{Kind: KindConflict, Code: CodeInvalidAction}
	ErrInvalidActionWithStatus = &Error{Kind: KindBadRequest, Code: CodeInvalidActionWithStatus}
	ErrOutOfStock              = &Error{Kind: KindBadRequest, Code: CodeOutOfStock}
	ErrMenuItemNotFound        = &Error{Kind: KindBadRequest, Code: CodeNotFound}
	ErrNoItems                 = &Error{Kind: KindBadRequest, Code: CodeNoItems}
	ErrNoBillableItems         = &Error{Kind: KindBadRequest, Code: CodeNoBillableItems}
	ErrConcurrentUpdate        = &Error{Kind: KindConflict, Code: CodeConcurrentUpdate}
)

func Unauthorized(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Code: CodeUnauthorized, Message: msg}
}

func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Code: CodeForbidden, Message: msg}
}

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Code: CodeNotFound, Message: msg}
}

func BadRequest(code, msg string) *Error {
	return &Error{Kind: KindBadRequest, Code: code, Message: msg}
}

func Conflict(code, msg string, err error) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: msg, Err: err}
}

// Validation reports a field-level input failure.
func Validation(field, code, msg string) *Error {
	return &Error{Kind: KindValidation, Code: code, Field: field, Message: msg}
}

// KindOf returns the kind of a domain error, KindInternal otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the code of a domain error, or "".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// AsError unwraps err into a domain error.
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
