package domain

import (
	"errors"
	"fmt"
)

// ErrUnauthorized is returned by providers when the API responds with HTTP 401 or 403.
var ErrUnauthorized = errors.New("unauthorized")

// ErrNotFound is returned by providers when the API responds with HTTP 404.
var ErrNotFound = errors.New("not found")

// InputError rejects a malformed or missing required input before any provider call.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// RunNotFoundError means the target run does not exist or the credentials cannot see it.
type RunNotFoundError struct {
	Repository string
	RunID      int64
	Err        error
}

func (e *RunNotFoundError) Error() string {
	return fmt.Sprintf(
		"run %d not found in %s: check that the run id is correct and that the token has read access to actions on this repository",
		e.RunID, e.Repository,
	)
}

func (e *RunNotFoundError) Unwrap() error {
	return e.Err
}
