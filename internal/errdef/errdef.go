package errdef

import (
	"errors"
	"fmt"
)

// NewNotFound creates an error representing a resource that could not be found.
func NewNotFound(format string, a ...any) error {
	return notFound{fmt.Errorf(format, a...)}
}

type notFound struct{ error }

// IsNotFound returns true if err is an error representing a resource that could not be found and false otherwise.
func IsNotFound(err error) bool {
	var e notFound
	return errors.As(err, &e)
}

// NewValidation creates an error representing input rejected at a parse/validate boundary.
func NewValidation(format string, a ...any) error {
	return validation{fmt.Errorf(format, a...)}
}

type validation struct{ error }

// IsValidation returns true if err is an error representing rejected input and false otherwise.
func IsValidation(err error) bool {
	var e validation
	return errors.As(err, &e)
}

// NewMissingCredential creates an error representing an operation which needs a credential that
// isn't stored.
func NewMissingCredential(format string, a ...any) error {
	return missingCredential{fmt.Errorf(format, a...)}
}

type missingCredential struct{ error }

func IsMissingCredential(err error) bool {
	var e missingCredential
	return errors.As(err, &e)
}

func NewBadRequest(format string, a ...any) error {
	return badRequest{fmt.Errorf(format, a...)}
}

type badRequest struct{ error }

func IsBadRequest(err error) bool {
	var e badRequest
	return errors.As(err, &e)
}
