package domain

import "errors"

// Domain validation errors.
var (
	// ErrInvalidGenome is returned when a genome fails structural validation.
	ErrInvalidGenome = errors.New("invalid genome")

	// ErrSchemaVersion is returned when a genome carries an unsupported
	// parameter-schema version.
	ErrSchemaVersion = errors.New("unsupported genome schema version")

	// ErrInvalidConfig is returned when an agent config fails validation.
	ErrInvalidConfig = errors.New("invalid agent config")
)
