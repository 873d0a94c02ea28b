package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and ledger backends return
// these (optionally wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: record or block does not exist in the store
// - ErrConflict: an atomic check-and-set lost to an earlier writer
// - ErrInvalidState: record in wrong lifecycle state for the operation
// - ErrUnavailable: backing store or external service temporarily unreachable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors
// directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
