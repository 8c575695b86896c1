package codec

import "errors"

// Domain errors for the codec package.
var (
	// ErrUnknownProperty is returned for a property name outside the catalogue.
	ErrUnknownProperty = errors.New("codec: unknown property")

	// ErrCoercion is returned when a value cannot be converted to the
	// property's declared kind.
	ErrCoercion = errors.New("codec: coercion failed")
)
