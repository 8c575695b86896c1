package codec

import "strings"

// Property names a synchronised air-conditioner attribute.
type Property string

// Read-only properties (device → hub only).
const (
	Active             Property = "active"
	Online             Property = "online"
	IndoorTemperature  Property = "indoor_temperature"
	OutdoorTemperature Property = "outdoor_temperature"
)

// Read-write properties (either direction).
const (
	PowerState        Property = "power_state"
	TargetTemperature Property = "target_temperature"
	OperationalMode   Property = "operational_mode"
	FanSpeed          Property = "fan_speed"
	SwingMode         Property = "swing_mode"
	EcoMode           Property = "eco_mode"
	TurboMode         Property = "turbo_mode"
)

// Direction states which side is authoritative for a property.
type Direction int

const (
	// ReadOnly properties flow from the device to the hub only.
	ReadOnly Direction = iota + 1
	// ReadWrite properties flow in either direction.
	ReadWrite
)

// String returns a lowercase name for the direction.
func (d Direction) String() string {
	switch d {
	case ReadOnly:
		return "read-only"
	case ReadWrite:
		return "read-write"
	default:
		return "unknown"
	}
}

// Kind is the value kind of a property.
type Kind int

const (
	KindBoolean Kind = iota + 1
	KindDecimal
	KindEnum
)

// String returns a lowercase name for the kind.
func (k Kind) String() string {
	switch k {
	case KindBoolean:
		return "boolean"
	case KindDecimal:
		return "decimal"
	case KindEnum:
		return "enum"
	default:
		return "unknown"
	}
}

// Mode is the AC operating mode. Values are the device ordinals.
type Mode int

const (
	ModeAuto    Mode = 1
	ModeCool    Mode = 2
	ModeDry     Mode = 3
	ModeHeat    Mode = 4
	ModeFanOnly Mode = 5
)

// Fan is the AC fan speed. Values are the device ordinals.
type Fan int

const (
	FanAuto   Fan = 102
	FanHigh   Fan = 80
	FanMedium Fan = 60
	FanLow    Fan = 40
	FanSilent Fan = 20
)

// Swing is the AC louvre swing setting. Values are the device ordinals.
type Swing int

const (
	SwingOff        Swing = 0x0
	SwingVertical   Swing = 0xC
	SwingHorizontal Swing = 0x3
	SwingBoth       Swing = 0xF
)

// EnumMember is one named value of an enum domain.
type EnumMember struct {
	Name    string
	Ordinal int
}

// Spec describes one catalogue entry.
type Spec struct {
	Name      Property
	Direction Direction
	Kind      Kind
	// Enum lists the domain for KindEnum properties, nil otherwise.
	Enum []EnumMember
}

var operationalModes = []EnumMember{
	{"auto", int(ModeAuto)},
	{"cool", int(ModeCool)},
	{"dry", int(ModeDry)},
	{"heat", int(ModeHeat)},
	{"fan_only", int(ModeFanOnly)},
}

var fanSpeeds = []EnumMember{
	{"auto", int(FanAuto)},
	{"high", int(FanHigh)},
	{"medium", int(FanMedium)},
	{"low", int(FanLow)},
	{"silent", int(FanSilent)},
}

var swingModes = []EnumMember{
	{"off", int(SwingOff)},
	{"vertical", int(SwingVertical)},
	{"horizontal", int(SwingHorizontal)},
	{"both", int(SwingBoth)},
}

// catalogue is ordered read-only first, then read-write.
var catalogue = []Spec{
	{Name: Active, Direction: ReadOnly, Kind: KindBoolean},
	{Name: Online, Direction: ReadOnly, Kind: KindBoolean},
	{Name: IndoorTemperature, Direction: ReadOnly, Kind: KindDecimal},
	{Name: OutdoorTemperature, Direction: ReadOnly, Kind: KindDecimal},
	{Name: PowerState, Direction: ReadWrite, Kind: KindBoolean},
	{Name: TargetTemperature, Direction: ReadWrite, Kind: KindDecimal},
	{Name: OperationalMode, Direction: ReadWrite, Kind: KindEnum, Enum: operationalModes},
	{Name: FanSpeed, Direction: ReadWrite, Kind: KindEnum, Enum: fanSpeeds},
	{Name: SwingMode, Direction: ReadWrite, Kind: KindEnum, Enum: swingModes},
	{Name: EcoMode, Direction: ReadWrite, Kind: KindBoolean},
	{Name: TurboMode, Direction: ReadWrite, Kind: KindBoolean},
}

// Lookup returns the catalogue entry for name.
func Lookup(name Property) (Spec, bool) {
	for _, s := range catalogue {
		if s.Name == name {
			return s, true
		}
	}
	return Spec{}, false
}

// All returns every property in catalogue order.
func All() []Property {
	out := make([]Property, 0, len(catalogue))
	for _, s := range catalogue {
		out = append(out, s.Name)
	}
	return out
}

// ReadWriteProperties returns the properties the hub may change.
func ReadWriteProperties() []Property {
	return byDirection(ReadWrite)
}

// ReadOnlyProperties returns the properties only the device may change.
func ReadOnlyProperties() []Property {
	return byDirection(ReadOnly)
}

func byDirection(d Direction) []Property {
	var out []Property
	for _, s := range catalogue {
		if s.Direction == d {
			out = append(out, s.Name)
		}
	}
	return out
}

// IsWritable reports whether the hub is allowed to change name.
func IsWritable(name Property) bool {
	s, ok := Lookup(name)
	return ok && s.Direction == ReadWrite
}

// memberByOrdinal finds the enum member with the given ordinal.
func (s Spec) memberByOrdinal(ordinal int) (EnumMember, bool) {
	for _, m := range s.Enum {
		if m.Ordinal == ordinal {
			return m, true
		}
	}
	return EnumMember{}, false
}

// memberByName finds the enum member with the given name, ignoring case.
func (s Spec) memberByName(name string) (EnumMember, bool) {
	for _, m := range s.Enum {
		if strings.EqualFold(m.Name, name) {
			return m, true
		}
	}
	return EnumMember{}, false
}

// typedMember converts an ordinal into the property's Go enum type.
func (s Spec) typedMember(ordinal int) any {
	switch s.Name {
	case OperationalMode:
		return Mode(ordinal)
	case FanSpeed:
		return Fan(ordinal)
	case SwingMode:
		return Swing(ordinal)
	default:
		return ordinal
	}
}
