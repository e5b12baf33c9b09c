package model

import "errors"

// Business rejection reasons. Adapters must surface each one distinctly;
// anything else coming out of the core is an infrastructure error.
var (
	ErrInvalidInterval = errors.New("end time must be after start time")
	ErrPastStartTime   = errors.New("start time is in the past")
	ErrSlotUnavailable = errors.New("time slot is already booked")
	ErrUnknownComputer = errors.New("computer does not exist or is inactive")
	ErrUnknownBooking  = errors.New("booking not found")
	ErrForbidden       = errors.New("administrator privileges required")
)

// IsRejection reports whether err is one of the recoverable, user-facing
// booking rejections as opposed to an infrastructure failure.
func IsRejection(err error) bool {
	return errors.Is(err, ErrInvalidInterval) ||
		errors.Is(err, ErrPastStartTime) ||
		errors.Is(err, ErrSlotUnavailable) ||
		errors.Is(err, ErrUnknownComputer) ||
		errors.Is(err, ErrUnknownBooking) ||
		errors.Is(err, ErrForbidden)
}
