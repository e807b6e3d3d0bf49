package domain

import "errors"

var (
	// ErrValidation marks an event rejected before it touched any store.
	ErrValidation = errors.New("validation failed")

	// ErrNotEntitled marks a premium read attempted without entitlement.
	ErrNotEntitled = errors.New("requires upgraded plan")

	// ErrEventLogUnavailable is fatal to the write path: nothing was recorded.
	ErrEventLogUnavailable = errors.New("event log unavailable")

	// ErrMirrorUnavailable flags an analytical-store failure. Writes convert
	// it into a queued retry; reads convert it into a fallback.
	ErrMirrorUnavailable = errors.New("analytical mirror unavailable")

	// ErrReadUnavailable means both the primary and the fallback read path
	// failed.
	ErrReadUnavailable = errors.New("data temporarily unavailable")

	// ErrEventNotFound is returned for lookups of unknown event ids.
	ErrEventNotFound = errors.New("event not found")

	// ErrUnsupportedPlan signals a query shape the mirror cannot answer; the
	// caller falls back to deriving the result from the event log.
	ErrUnsupportedPlan = errors.New("unsupported query plan")

	// ErrBackfillConflict is returned when a resync would double-count rows
	// already migrated for the same user.
	ErrBackfillConflict = errors.New("migration rows already present; rerun with replace to reinsert")
)
