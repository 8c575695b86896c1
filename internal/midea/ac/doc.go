// Package ac models a Midea air conditioner reached through the cloud's
// transparent command channel.
//
// An Appliance keeps the last known unit state. Refresh sends a status
// query frame and parses the reply; the typed setters stage new values and
// Apply sends them in one set frame. Both fail with midea.ErrDeviceOffline
// when the cloud reports the unit unreachable.
//
// Frame layout:
//
//	packet  = 40-byte header | command | checksum | zero padding
//	command = 0xAA | length | 0xAC | ... | body | CRC8
//
// The CRC8 is the Dallas/Maxim variant over command[16:]; the packet
// checksum is the two's complement of the byte sum of command[1:].
package ac
