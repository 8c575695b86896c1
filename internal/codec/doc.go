// Package codec converts air-conditioner property values between the hub's
// string form and the device's native form.
//
// The hub (openHAB) stores every item state as a string. The device side
// works with Go booleans, float64 temperatures and typed enum members. This
// package owns the static property catalogue and the canonicalisation rules
// that make the two representations comparable:
//
//   - booleans are "ON" or "OFF"
//   - decimals always carry a fractional part ("24.0")
//   - enums are stored as their ordinal rendered as a decimal ("2.0")
//   - the "NULL" sentinel round-trips untouched
//
// All functions are pure and safe for concurrent use.
package codec
