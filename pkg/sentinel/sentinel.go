package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into domain errors without knowing
// whether the store is in-memory or Postgres.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: row does not exist
// - ErrConflict: unique constraint or bounded counter rejected the write
// - ErrInvalidState: row is in the wrong state for the requested transition
//
// For validation errors (bad input, missing fields), use pkg/domain-errors.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
)
