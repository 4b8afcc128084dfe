package repositories

import "fmt"

// CounterErrorCode identifies why a sequence allocation failed.
type CounterErrorCode string

const (
	// CounterErrorInvalidInput flags a bad counter id or step.
	CounterErrorInvalidInput CounterErrorCode = "counter_invalid_input"
	// CounterErrorExhausted flags a counter that reached its bound.
	// Order numbers render with six digits, so the orders counter is
	// seeded with a matching maxValue.
	CounterErrorExhausted CounterErrorCode = "counter_exhausted"
)

// CounterError carries a machine-readable code alongside the message so
// callers can distinguish caller mistakes from exhausted sequences.
type CounterError struct {
	Code    CounterErrorCode
	Message string
	Err     error
}

func (e *CounterError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *CounterError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewCounterError builds a typed counter error, defaulting the message
// to the code when none is given.
func NewCounterError(code CounterErrorCode, message string, err error) *CounterError {
	if message == "" {
		message = string(code)
	}
	return &CounterError{Code: code, Message: message, Err: err}
}
