package domain

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation         Kind = "validation_error"
	KindNotFound           Kind = "not_found"
	KindForbidden          Kind = "forbidden"
	KindInvalidTransition  Kind = "invalid_transition"
	KindOutOfStock         Kind = "out_of_stock"
	KindInsufficientPoints Kind = "insufficient_points"
	KindLocationRequired   Kind = "location_required"
	KindAlreadyReviewed    Kind = "already_reviewed"
	KindInvalidCoordinate  Kind = "invalid_coordinate"
	KindAlreadyTaken       Kind = "already_taken"
	KindItemNotFound       Kind = "item_not_found"
	KindInternal           Kind = "internal_error"
)

// Error is a caller-facing failure. Anything that is not an *Error is internal.
type Error struct {
	Kind    Kind           `json:"kind"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
}

func (e *Error) Error() string { return string(e.Kind) + ": " + e.Message }

func Errf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// With attaches a machine-readable detail to the error.
func (e *Error) With(key string, v any) *Error {
	if e.Fields == nil {
		e.Fields = map[string]any{}
	}
	e.Fields[key] = v
	return e
}

func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

func IsKind(err error, kind Kind) bool { return KindOf(err) == kind }
