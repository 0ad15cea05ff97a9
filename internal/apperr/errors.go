// Package apperr defines the error taxonomy shared by the store, the services and
// the transport layers.
package apperr

import (
	"errors"
	"net/http"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrForbidden            = errors.New("forbidden")
	ErrVerificationRequired = errors.New("email verification required")
	ErrDuplicateName        = errors.New("duplicate name")
	ErrInvalidInput         = errors.New("invalid input")
	ErrConflict             = errors.New("conflict")

	// ErrSlugTaken is returned by stores when an insert loses the race for a slug.
	// The naming retry loop consumes it; it is never surfaced to callers.
	ErrSlugTaken = errors.New("slug already taken")
)

// Code returns the machine readable kind of err.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrVerificationRequired):
		return "verification_required"
	case errors.Is(err, ErrDuplicateName):
		return "duplicate_name"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrConflict), errors.Is(err, ErrSlugTaken):
		return "conflict"
	default:
		return "internal"
	}
}

// HTTPStatus maps err to the status code used by the control surface.
func HTTPStatus(err error) int {
	switch Code(err) {
	case "not_found":
		return http.StatusNotFound
	case "forbidden", "verification_required":
		return http.StatusForbidden
	case "duplicate_name", "conflict":
		return http.StatusConflict
	case "invalid_input":
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the text shown to clients. Internal errors are not exposed.
func Message(err error) string {
	if Code(err) == "internal" {
		return "internal error"
	}
	return err.Error()
}
