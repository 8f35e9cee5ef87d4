package domain

import "errors"

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidRange      = errors.New("invalid date range")
	ErrCapacityExceeded  = errors.New("capacity exceeded")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAlreadyExpired    = errors.New("booking hold already expired")
	ErrAlreadyConfirmed  = errors.New("booking already confirmed")
	ErrNotFound          = errors.New("not found")
)

// ErrorKind returns the stable machine-readable name of the error's category,
// or an empty string when err is not one of the engine's errors.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return "INVALID_INPUT"
	case errors.Is(err, ErrInvalidRange):
		return "INVALID_RANGE"
	case errors.Is(err, ErrCapacityExceeded):
		return "CAPACITY_EXCEEDED"
	case errors.Is(err, ErrInvalidTransition):
		return "INVALID_TRANSITION"
	case errors.Is(err, ErrAlreadyExpired):
		return "ALREADY_EXPIRED"
	case errors.Is(err, ErrAlreadyConfirmed):
		return "ALREADY_CONFIRMED"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	}
	return ""
}
