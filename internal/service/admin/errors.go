package admin

import (
	"errors"
)

var (
	ErrTablesConflict   = errors.New("a table with this number already exists")
	ErrInvalidTable     = errors.New("table number and seats must be positive")
	ErrInvalidStatus    = errors.New("unknown booking status")
	ErrStatusTransition = errors.New("booking status cannot change this way")
	ErrBookingNotFound  = errors.New("booking not found")
)
