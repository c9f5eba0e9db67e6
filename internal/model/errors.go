package model

import "errors"

// Error kinds returned by the registry and the defect log. Callers match them
// with errors.Is; the wrapping error carries the human-readable message.
// Transport layers map them to 400 / 409 / 404 / 500 and the matching gRPC codes.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrAlreadyExists   = errors.New("already exists")
	ErrNotFound        = errors.New("not found")
	ErrPersistence     = errors.New("persistence error")
)
