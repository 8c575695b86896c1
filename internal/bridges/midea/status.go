package midea

import (
	"fmt"
	"time"

	"github.com/nerrad567/midea-bridge/internal/codec"
)

// DeviceStatus is a read-only view of one configured device for status
// reporting.
type DeviceStatus struct {
	Name string `json:"name"`
	ID   string `json:"id"`
	IP   string `json:"ip,omitempty"`
	Port int    `json:"port,omitempty"`

	// Matched is false when the cloud roster has no air conditioner with
	// this id.
	Matched bool   `json:"matched"`
	Model   string `json:"model,omitempty"`
	Serial  string `json:"serial,omitempty"`
	Online  bool   `json:"online"`

	// LastRefresh is nil until the device has been read or written.
	LastRefresh *time.Time   `json:"last_refresh,omitempty"`
	Values      DeviceValues `json:"values"`
}

// Devices returns the status of every configured device in configuration
// order.
func (b *Bridge) Devices() []DeviceStatus {
	snapshot := b.engine.Snapshot()
	entries := make(map[string]RosterEntry)
	for _, e := range b.roster.Entries() {
		entries[e.Config.Name] = e
	}

	out := make([]DeviceStatus, 0, len(b.roster.configs))
	for _, cfg := range b.roster.configs {
		out = append(out, b.deviceStatus(cfg, entries, snapshot))
	}
	return out
}

// Device returns the status of one configured device.
func (b *Bridge) Device(name string) (DeviceStatus, error) {
	for _, d := range b.Devices() {
		if d.Name == name {
			return d, nil
		}
	}
	return DeviceStatus{}, fmt.Errorf("%w: %s", ErrUnknownDevice, name)
}

func (b *Bridge) deviceStatus(cfg DeviceConfig, entries map[string]RosterEntry, snapshot map[string]DeviceValues) DeviceStatus {
	st := DeviceStatus{
		Name:   cfg.Name,
		ID:     cfg.ID,
		IP:     cfg.IP,
		Port:   cfg.Port,
		Values: snapshot[cfg.Name],
	}
	if e, ok := entries[cfg.Name]; ok {
		st.Matched = true
		st.Model = e.Info.ModelNumber
		st.Serial = e.Info.SerialNumber
		st.Online = e.Info.Online()
	}
	if v, ok := st.Values.Device[codec.Online]; ok && v != codec.Unset {
		st.Online = v == codec.On
	}
	if at := b.engine.LastRefresh(cfg.Name); !at.IsZero() {
		st.LastRefresh = &at
	}
	return st
}
