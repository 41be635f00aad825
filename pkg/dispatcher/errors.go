package dispatcher

import (
	"errors"
	"fmt"
)

// ErrUnknownAction indicates the request named an action the service does not
// handle. No execution is started.
var ErrUnknownAction = errors.New("unknown action")

// ValidationError carries the fields a dispatch request was missing or got
// wrong. It surfaces to the caller; no workflow is started.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid dispatch request: %v", e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether the error is a request validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError

	return errors.As(err, &ve)
}
