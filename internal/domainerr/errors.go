// README: Domain error taxonomy shared by every module and mapped to HTTP in the transport layer.
package domainerr

import "errors"

var (
	ErrValidation             = errors.New("validation failed")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrInvalidDriver          = errors.New("driver is not eligible for this order")
	ErrAlreadyProcessed       = errors.New("refund already processed")
	ErrNotFound               = errors.New("not found")
	ErrConcurrentModification = errors.New("resource was modified concurrently, refetch and retry")
	ErrStoreUnavailable       = errors.New("store unavailable")
)

// ErrorCodes binds each sentinel to the code reported to API clients.
var ErrorCodes = map[error]string{
	ErrValidation:             "VALIDATION_FAILED",
	ErrInvalidTransition:      "INVALID_TRANSITION",
	ErrInvalidDriver:          "INVALID_DRIVER",
	ErrAlreadyProcessed:       "ALREADY_PROCESSED",
	ErrNotFound:               "NOT_FOUND",
	ErrConcurrentModification: "CONCURRENT_MODIFICATION",
	ErrStoreUnavailable:       "STORE_UNAVAILABLE",
}

// Code returns the code of the first sentinel err wraps, or INTERNAL_ERROR.
func Code(err error) string {
	for sentinel, code := range ErrorCodes {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return "INTERNAL_ERROR"
}

// Unavailable wraps an infrastructure failure so callers can classify it
// without seeing driver-specific error types.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return &storeError{op: op, err: err}
}

type storeError struct {
	op  string
	err error
}

func (e *storeError) Error() string { return e.op + ": " + e.err.Error() }

func (e *storeError) Unwrap() []error { return []error{ErrStoreUnavailable, e.err} }
