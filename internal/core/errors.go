package core

import "errors"

var (
	// ErrSessionNotFound is returned when no session exists for an id.
	ErrSessionNotFound = errors.New("import session not found")

	// ErrSessionExists is returned when creating a session whose id is taken.
	ErrSessionExists = errors.New("import session already exists")

	// ErrSessionTerminal is returned for control calls on a finished session.
	ErrSessionTerminal = errors.New("import session already finished")

	// ErrInvalidTransition is returned when a control call does not apply to
	// the session's current status.
	ErrInvalidTransition = errors.New("invalid import status transition")

	// ErrNoRecords is returned when an import is started without rows.
	ErrNoRecords = errors.New("no records to import")

	// ErrInvalidSettings is returned when import settings fail validation.
	ErrInvalidSettings = errors.New("invalid import settings")

	// ErrInvalidRequest is returned when an import request cannot be decoded.
	ErrInvalidRequest = errors.New("invalid import request")
)
