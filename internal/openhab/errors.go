package openhab

import "errors"

// Domain errors for the openhab package.
var (
	// ErrItemNotFound is returned when the hub has no item of that name.
	ErrItemNotFound = errors.New("openhab: item not found")

	// ErrUnavailable is returned when the hub cannot be reached or answers
	// with an unexpected status.
	ErrUnavailable = errors.New("openhab: hub unavailable")

	// ErrInvalidURL is returned when the hub URL cannot be parsed.
	ErrInvalidURL = errors.New("openhab: invalid URL")

	// ErrMalformedEvent is returned for stream frames that are not event envelopes.
	ErrMalformedEvent = errors.New("openhab: malformed event")

	// ErrStreamClosed is returned when the hub ends the event stream.
	ErrStreamClosed = errors.New("openhab: event stream closed")
)
