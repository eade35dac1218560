package domain

import "errors"

var (
	ErrNotFound  = errors.New("job not found")
	ErrNotReady  = errors.New("job not ready")
	ErrBusy      = errors.New("server busy")
	ErrQueueFull = errors.New("task queue full")
	ErrCancelled = errors.New("job cancelled")
)

// ConversionError is the failure a converter reports for one input. It is
// captured at the worker boundary and recorded on the job or item, never
// propagated further.
type ConversionError struct {
	Message string
}

func (e *ConversionError) Error() string {
	return e.Message
}

func NewConversionError(message string) *ConversionError {
	return &ConversionError{Message: message}
}

// AsConversionError reports whether err is (or wraps) a ConversionError.
func AsConversionError(err error) (*ConversionError, bool) {
	var ce *ConversionError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
