package types

import "errors"

var (
	// ErrUnknownKind is returned when a metric kind name is not recognized
	ErrUnknownKind = errors.New("unknown metric kind")

	// ErrInvalidDate is returned when a calendar date cannot be parsed
	ErrInvalidDate = errors.New("invalid calendar date")
)
