package suppression

import "errors"

// Sentinel errors for the suppression service layer.
var (
	ErrNotFound       = errors.New("suppression entry not found")
	ErrInvalidAddress = errors.New("email address is required")
	ErrInvalidReason  = errors.New("unknown suppression reason")
)
