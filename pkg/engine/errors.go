package engine

import "errors"

// Sentinel errors raised for precondition violations — malformed requests a
// caller should not retry with the same arguments. Invalid-input and
// not-found conditions reached during normal operation are reported through
// a result's Success/Message fields instead of a Go error; see each
// operation's doc comment for which path it takes.
var (
	// ErrCrossEntityMerge is returned by [Engine.Merge] when the requested
	// observation ids span more than one entity.
	ErrCrossEntityMerge = errors.New("engine: merge: observations span more than one entity")

	// ErrObservationMissing is returned by [Engine.Merge] when one or more
	// requested observation ids do not exist.
	ErrObservationMissing = errors.New("engine: merge: one or more observations not found")

	// ErrEmptyContent is returned when content required to be non-empty
	// (after control-character stripping) is empty.
	ErrEmptyContent = errors.New("engine: content must not be empty")

	// ErrContentTooLong is returned when content exceeds the 2000-character limit.
	ErrContentTooLong = errors.New("engine: content exceeds 2000 characters")

	// ErrNoForgetTarget is returned by [Engine.Forget] when neither an
	// entity name nor an observation id was provided.
	ErrNoForgetTarget = errors.New("engine: forget: exactly one of entity or observation_id is required")

	// ErrAmbiguousForgetTarget is returned by [Engine.Forget] when both an
	// entity name and an observation id were provided.
	ErrAmbiguousForgetTarget = errors.New("engine: forget: exactly one of entity or observation_id is required, got both")
)
