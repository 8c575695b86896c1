package midea

import (
	"sync"

	"github.com/nerrad567/midea-bridge/internal/codec"
)

// Side names one end of a synchronised property.
type Side int

// Sides of a property.
const (
	SideHub Side = iota
	SideDevice
)

// String returns the side name.
func (s Side) String() string {
	if s == SideDevice {
		return "device"
	}
	return "hub"
}

// SyncStore holds the last canonical hub string observed on each side for
// every (device, property) pair. Every entry starts as codec.Unset.
//
// Thread Safety:
//   - All methods are safe for concurrent use. Multi-step read-compare-commit
//     sequences are serialised by the Engine's per-device lock.
type SyncStore struct {
	mu      sync.RWMutex
	devices map[string]*deviceValues
}

type deviceValues struct {
	hub    map[codec.Property]string
	device map[codec.Property]string
}

// DeviceValues is a copy of one device's cache.
type DeviceValues struct {
	Hub    map[codec.Property]string `json:"hub"`
	Device map[codec.Property]string `json:"device"`
}

// NewSyncStore creates a store with every property of every device unset.
func NewSyncStore(devices []string) *SyncStore {
	s := &SyncStore{devices: make(map[string]*deviceValues, len(devices))}
	for _, name := range devices {
		s.devices[name] = newDeviceValues()
	}
	return s
}

func newDeviceValues() *deviceValues {
	v := &deviceValues{
		hub:    make(map[codec.Property]string),
		device: make(map[codec.Property]string),
	}
	for _, p := range codec.All() {
		v.hub[p] = codec.Unset
		v.device[p] = codec.Unset
	}
	return v
}

// Get returns the cached value for one side of a property. Unknown devices
// and properties read as codec.Unset.
func (s *SyncStore) Get(device string, side Side, p codec.Property) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.devices[device]
	if !ok {
		return codec.Unset
	}
	m := v.hub
	if side == SideDevice {
		m = v.device
	}
	if val, ok := m[p]; ok {
		return val
	}
	return codec.Unset
}

// Commit records value on both sides after a successful propagation.
func (s *SyncStore) Commit(device string, p codec.Property, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.devices[device]
	if !ok {
		v = newDeviceValues()
		s.devices[device] = v
	}
	v.hub[p] = value
	v.device[p] = value
}

// Snapshot returns a deep copy of the store keyed by device.
func (s *SyncStore) Snapshot() map[string]DeviceValues {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]DeviceValues, len(s.devices))
	for name, v := range s.devices {
		dv := DeviceValues{
			Hub:    make(map[codec.Property]string, len(v.hub)),
			Device: make(map[codec.Property]string, len(v.device)),
		}
		for p, val := range v.hub {
			dv.Hub[p] = val
		}
		for p, val := range v.device {
			dv.Device[p] = val
		}
		out[name] = dv
	}
	return out
}
