package ac

import (
	"fmt"
	"math"

	"github.com/nerrad567/midea-bridge/internal/codec"
)

// Frame constants.
const (
	// TypeAirConditioner is the appliance type byte for air conditioners.
	TypeAirConditioner = 0xAC

	headerSize     = 0x28
	bodyOffset     = 0x0a
	responseOffset = headerSize + bodyOffset
	responseType   = 0xc0

	// minBodySize covers every byte parseStatus reads.
	minBodySize = 13

	// packetPadding is the size the command plus padding is rounded to.
	packetPadding = 49

	crcOffset = 16

	minTargetTemperature = 16
	maxTargetTemperature = 31
)

// packetHeader is the fixed 40-byte transparent packet header. Byte 0x04
// carries the total packet length.
var packetHeader = [headerSize]byte{
	0x5a, 0x5a, 0x01, 0x11, 0x5c, 0x00, 0x20, 0x00,
	0x01, 0x00, 0x00, 0x00, 0xbd, 0xb3, 0x39, 0x0e,
	0x0c, 0x05, 0x13, 0x06, 0x14, 0x00, 0x00, 0x00,
}

// statusQuery is the command body asking the unit for its state.
var statusQuery = []byte{
	0xaa, 0x20, 0xac, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x03, 0x41, 0x81, 0x00, 0xff, 0x03, 0xff,
	0x00, 0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x03,
}

// setTemplate is the command body for a state change before fields are set.
var setTemplate = []byte{
	0xaa, 0x23, 0xac, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x03, 0x02, 0x40, 0x81, 0x00, 0xff, 0x03, 0xff,
	0x00, 0x30, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00,
}

// Set command field offsets.
const (
	setPower  = 0x0b
	setTemp   = 0x0c
	setFan    = 0x0d
	setSwing  = 0x11
	setEco    = 0x13
	setTurbo  = 0x14
	beepBits  = 0x42
	turboBit  = 0x02
	swingBase = 0x30
)

// crc8 is CRC-8/MAXIM (reflected polynomial 0x8C, zero init).
func crc8(data []byte) byte {
	var crc byte
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x01 != 0 {
				crc = (crc >> 1) ^ 0x8c
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// checksum is the two's complement of the byte sum.
func checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return -sum
}

// finalizeCommand appends the CRC8 and writes the command length.
func finalizeCommand(cmd []byte) []byte {
	cmd = append(cmd, crc8(cmd[crcOffset:]))
	cmd[1] = byte(len(cmd))
	return cmd
}

// buildPacket wraps a finalised command in the transparent packet.
func buildPacket(cmd []byte) []byte {
	packet := make([]byte, 0, headerSize+packetPadding+1)
	packet = append(packet, packetHeader[:]...)
	packet = append(packet, cmd...)
	packet = append(packet, checksum(cmd[1:]))
	if pad := packetPadding - len(cmd); pad > 0 {
		packet = append(packet, make([]byte, pad)...)
	}
	packet[4] = byte(len(packet))
	return packet
}

// StatusQueryPacket returns the packet asking the unit for its state.
func StatusQueryPacket() []byte {
	cmd := append([]byte(nil), statusQuery...)
	return buildPacket(finalizeCommand(cmd))
}

// SetPacket returns the packet applying s to the unit.
func SetPacket(s State) []byte {
	cmd := append([]byte(nil), setTemplate...)

	cmd[setPower] |= beepBits
	if s.PowerState {
		cmd[setPower] |= 0x01
	}

	temp := clampTarget(s.TargetTemperature)
	whole := int(temp)
	cmd[setTemp] = byte((whole-minTargetTemperature)&0x0f) | byte((int(s.OperationalMode)<<5)&0xe0)
	if temp-float64(whole) >= 0.5 {
		cmd[setTemp] |= 0x10
	}

	cmd[setFan] = byte(s.FanSpeed)
	cmd[setSwing] = swingBase | byte(int(s.SwingMode)&0x3f)
	if s.EcoMode {
		cmd[setEco] = 0xff
	}
	if s.TurboMode {
		cmd[setTurbo] |= turboBit
	}

	return buildPacket(finalizeCommand(cmd))
}

// parseStatus decodes a status reply packet into the reported fields. The
// connectivity fields of the returned State are left unset.
func parseStatus(reply []byte) (State, error) {
	if len(reply) < responseOffset+minBodySize {
		return State{}, fmt.Errorf("%w: %d bytes", ErrShortResponse, len(reply))
	}
	b := reply[responseOffset:]
	if b[0] != responseType {
		return State{}, fmt.Errorf("%w: 0x%02x", ErrUnexpectedResponse, b[0])
	}

	return State{
		PowerState:         b[1]&0x01 != 0,
		TargetTemperature:  float64(int(b[2]&0x0f) + minTargetTemperature),
		OperationalMode:    codec.Mode((b[2] & 0xe0) >> 5),
		FanSpeed:           codec.Fan(b[3] & 0x7f),
		SwingMode:          codec.Swing(b[7] & 0x0f),
		TurboMode:          b[8]&0x20 != 0,
		EcoMode:            b[9]&0x10 != 0,
		IndoorTemperature:  (float64(b[11]) - 50) / 2,
		OutdoorTemperature: (float64(b[12]) - 50) / 2,
	}, nil
}

func clampTarget(t float64) float64 {
	if math.IsNaN(t) {
		return minTargetTemperature
	}
	return math.Max(minTargetTemperature, math.Min(maxTargetTemperature, t))
}
