package scheduling

import "errors"

// Failures returned by the agenda engine. Handlers map these to HTTP
// statuses; anything not in this list is treated as a storage failure.
var (
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidInstant   = errors.New("invalid instant")
	ErrInvalidRange     = errors.New("start date is after end date")
	ErrMissingField     = errors.New("missing required field")
	ErrSlotNotFound     = errors.New("slot not found")
	ErrProviderNotFound = errors.New("provider not found")
	ErrDuplicateSlot    = errors.New("slot already exists for provider at that instant")
	ErrAlreadyBooked    = errors.New("slot is already booked")
	ErrAlreadyOpen      = errors.New("slot is already open")
	ErrAlreadyAttended  = errors.New("slot is already marked attended")
	ErrAlreadyPaid      = errors.New("slot is already marked paid")
)
