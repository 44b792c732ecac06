package database

import "errors"

var (
	// ErrNotFound is returned when a session does not exist.
	ErrNotFound = errors.New("session not found")

	// ErrNoDatabase is returned when the database file is missing and may not be created.
	ErrNoDatabase = errors.New("database not found")
)
