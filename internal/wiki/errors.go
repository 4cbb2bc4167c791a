package wiki

import (
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
)

// Category names a class of caller-visible failure.
type Category string

const (
	CategoryNotFound   Category = "not_found"
	CategoryConflict   Category = "conflict"
	CategoryBadRequest Category = "bad_request"
	CategoryInternal   Category = "internal"
)

const internalMessage = "the wiki service could not complete the request"

// Error is a categorised failure with a caller-facing message.
type Error struct {
	Category Category
	Message  string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Category)
	}
	return e.Message
}

// Is matches the category sentinels so callers can write eris.Is(err, ErrNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Category == e.Category && (t.Message == "" || t.Message == e.Message)
}

// Category sentinels.
var (
	ErrNotFound   = &Error{Category: CategoryNotFound}
	ErrConflict   = &Error{Category: CategoryConflict}
	ErrBadRequest = &Error{Category: CategoryBadRequest}
)

// Classify maps err onto its category. Unrecognised errors are internal.
func Classify(err error) Category {
	if err == nil {
		return ""
	}

	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Category
	}
	return CategoryInternal
}

// Message returns the caller-facing message for err. Internal errors get a generic
// message so storage details stay hidden.
func Message(err error) string {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Error()
	}
	return internalMessage
}

func categorised(category Category, format string, args ...any) error {
	message := fmt.Sprintf(format, args...)
	return eris.Wrap(&Error{Category: category, Message: message}, message)
}

func notFoundf(format string, args ...any) error {
	return categorised(CategoryNotFound, format, args...)
}

func conflictf(format string, args ...any) error {
	return categorised(CategoryConflict, format, args...)
}

func badRequestf(format string, args ...any) error {
	return categorised(CategoryBadRequest, format, args...)
}
