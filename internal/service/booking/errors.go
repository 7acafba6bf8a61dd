package booking

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrSchedulingConflict = errors.New("scheduling conflict")
	ErrNoTableAvailable   = errors.New("no table available")
	ErrBookingNotFound    = errors.New("booking not found")
	ErrNotEditable        = errors.New("only pending bookings at least 1 day ahead can be edited")
	ErrNotCancellable     = errors.New("booking is already cancelled or completed")
	ErrRateLimited        = errors.New("too many booking requests")
)

const (
	MsgGuestsMin     = "Please select at least 1 guest."
	MsgGuestsInvalid = "Please enter a valid number of guests"
	MsgDateAdvance   = "Bookings must be made at least 1 day in advance."
	MsgTimeRange     = "Please choose a time between 11:00 am - 22:00 pm"
	MsgConflict      = "You already have a booking at this time."
	MsgNoTables      = "There are no tables available for that number of guests."
	MsgUpdated       = "Booking updated successfully!"
)

// ValidationError reports a rejected input field with a message fit for the
// end user.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry in %s", e.RetryAfter)
}

func (e *RateLimitedError) Unwrap() error {
	return ErrRateLimited
}
