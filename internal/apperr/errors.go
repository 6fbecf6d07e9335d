package apperr

import "errors"

var (
	// ErrNotFound is returned when a taxonomy node, mapping, or product
	// does not exist. It is a normal outcome callers branch on, not a failure.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when an automated call attempts to overwrite
	// a human-reviewed category mapping.
	ErrConflict = errors.New("conflict")

	// ErrInvalidTaxonomyRef is returned when a mapping mutation references a
	// taxonomy node that does not exist. The mapping keeps its prior state.
	ErrInvalidTaxonomyRef = errors.New("invalid taxonomy reference")
)
