package services

import "errors"

// Sentinel errors shared by the service layer. Handlers map these to HTTP
// statuses at the boundary; anything unrecognized becomes a 500 with no
// internal detail leaked.
var (
	ErrValidation     = errors.New("invalid input")
	ErrNotFound       = errors.New("not found")
	ErrDuplicate      = errors.New("duplicate entry")
	ErrSelfAction     = errors.New("cannot target yourself")
	ErrAlreadyMatched = errors.New("already matched")
	ErrUpstream       = errors.New("upstream service failure")
)
