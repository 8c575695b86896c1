package codec

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Unset is the hub's sentinel for an item with no state.
const Unset = "NULL"

// Canonical boolean strings on the hub side.
const (
	On  = "ON"
	Off = "OFF"
)

// unitSuffixes are stripped from raw hub states; openHAB appends units to
// formatted number items.
var unitSuffixes = []string{"°C", "Â", "%"}

// IsUnset reports whether v is the unset sentinel (or nil).
func IsUnset(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == Unset
}

// Clean normalises a raw hub state. The unset sentinel is returned as is.
func Clean(raw string) string {
	if raw == Unset {
		return Unset
	}
	for _, suffix := range unitSuffixes {
		raw = strings.TrimSuffix(raw, suffix)
	}
	return strings.TrimSpace(raw)
}

// ToHubString converts a native or hub-side value for property p into its
// canonical hub string.
//
// Parameters:
//   - p: Catalogue property
//   - native: bool, any Go number, a Mode/Fan/Swing member, or a string
//
// Returns:
//   - string: Canonical hub form ("ON", "24.0", "2.0", or Unset)
//   - error: ErrUnknownProperty or ErrCoercion (wrapped)
func ToHubString(p Property, native any) (string, error) {
	spec, ok := Lookup(p)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownProperty, p)
	}
	if IsUnset(native) {
		return Unset, nil
	}

	switch spec.Kind {
	case KindBoolean:
		if isTruthy(native) {
			return On, nil
		}
		return Off, nil

	case KindDecimal:
		f, err := toFloat(native)
		if err != nil {
			return "", fmt.Errorf("%w: %s value %v: %w", ErrCoercion, p, native, err)
		}
		return FormatDecimal(f), nil

	case KindEnum:
		member, err := spec.resolveMember(native)
		if err != nil {
			return "", err
		}
		return FormatDecimal(float64(member.Ordinal)), nil
	}

	return "", fmt.Errorf("%w: %s has no kind", ErrCoercion, p)
}

// ToDeviceValue converts a hub string for property p into its native value:
// bool for booleans, float64 for decimals, Mode/Fan/Swing for enums.
// The unset sentinel is returned unchanged; callers check IsUnset.
func ToDeviceValue(p Property, hub string) (any, error) {
	spec, ok := Lookup(p)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProperty, p)
	}
	hub = Clean(hub)
	if hub == Unset {
		return Unset, nil
	}

	switch spec.Kind {
	case KindBoolean:
		return hub == On, nil

	case KindDecimal:
		f, err := strconv.ParseFloat(hub, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s value %q: %w", ErrCoercion, p, hub, err)
		}
		return f, nil

	case KindEnum:
		member, err := spec.resolveMember(hub)
		if err != nil {
			return nil, err
		}
		return spec.typedMember(member.Ordinal), nil
	}

	return nil, fmt.Errorf("%w: %s has no kind", ErrCoercion, p)
}

// Canonical cleans a raw hub value and renders it in canonical hub form.
func Canonical(p Property, raw string) (string, error) {
	return ToHubString(p, Clean(raw))
}

// FormatDecimal renders f with at least one fractional digit.
func FormatDecimal(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") && !math.IsInf(f, 0) && !math.IsNaN(f) {
		s += ".0"
	}
	return s
}

// resolveMember maps a typed member, number or string to an enum member.
func (s Spec) resolveMember(v any) (EnumMember, error) {
	var ordinal int
	switch val := v.(type) {
	case Mode:
		ordinal = int(val)
	case Fan:
		ordinal = int(val)
	case Swing:
		ordinal = int(val)
	case string:
		if !isNumeric(val) {
			m, ok := s.memberByName(val)
			if !ok {
				return EnumMember{}, fmt.Errorf("%w: %s has no member named %q", ErrCoercion, s.Name, val)
			}
			return m, nil
		}
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return EnumMember{}, fmt.Errorf("%w: %s value %q: %w", ErrCoercion, s.Name, val, err)
		}
		ordinal = int(f)
	default:
		f, err := toFloat(v)
		if err != nil {
			return EnumMember{}, fmt.Errorf("%w: %s value %v: %w", ErrCoercion, s.Name, v, err)
		}
		ordinal = int(f)
	}

	m, ok := s.memberByOrdinal(ordinal)
	if !ok {
		return EnumMember{}, fmt.Errorf("%w: %s has no ordinal %d", ErrCoercion, s.Name, ordinal)
	}
	return m, nil
}

// isTruthy implements the boolean literal set shared by both sides.
func isTruthy(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		switch val {
		case "1", "1.0", "on", "ON", "y", "Y":
			return true
		}
		return false
	}
	f, err := toFloat(v)
	return err == nil && f == 1
}

// isNumeric reports whether s is digits with at most one dot.
func isNumeric(s string) bool {
	digits := strings.Replace(s, ".", "", 1)
	if digits == "" {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// toFloat converts Go numbers and numeric strings to float64.
func toFloat(v any) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int:
		return float64(val), nil
	case int8:
		return float64(val), nil
	case int16:
		return float64(val), nil
	case int32:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case uint:
		return float64(val), nil
	case uint8:
		return float64(val), nil
	case uint16:
		return float64(val), nil
	case uint32:
		return float64(val), nil
	case uint64:
		return float64(val), nil
	case Mode:
		return float64(val), nil
	case Fan:
		return float64(val), nil
	case Swing:
		return float64(val), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(val), 64)
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}
