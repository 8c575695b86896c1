package ac

import "errors"

// Domain errors for the ac package.
var (
	// ErrShortResponse is returned when a reply frame is too short to parse.
	ErrShortResponse = errors.New("ac: response too short")

	// ErrUnexpectedResponse is returned when a reply is not a status frame.
	ErrUnexpectedResponse = errors.New("ac: unexpected response type")

	// ErrUnsupportedValue is returned when a setter receives the wrong type.
	ErrUnsupportedValue = errors.New("ac: unsupported value")

	// ErrReadOnly is returned when setting a property the unit only reports.
	ErrReadOnly = errors.New("ac: property is read-only")

	// ErrNotAirConditioner is returned for roster records of other appliance types.
	ErrNotAirConditioner = errors.New("ac: appliance is not an air conditioner")
)
