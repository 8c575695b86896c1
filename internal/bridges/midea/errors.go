package midea

import "errors"

// Domain errors for the bridge.
var (
	// ErrReadOnlyProperty is returned when the hub tries to change a property
	// that only the device reports.
	ErrReadOnlyProperty = errors.New("bridge: property is read-only")

	// ErrUnknownDevice is returned for device names missing from the roster.
	ErrUnknownDevice = errors.New("bridge: unknown device")

	// ErrNoDevices is returned when no configured device could be matched
	// to a cloud appliance.
	ErrNoDevices = errors.New("bridge: no devices in roster")

	// ErrInvalidItem is returned for item names that do not follow
	// "<prefix>_<device>_<property>".
	ErrInvalidItem = errors.New("bridge: invalid item name")
)
