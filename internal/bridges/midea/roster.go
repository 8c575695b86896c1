package midea

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/nerrad567/midea-bridge/internal/codec"
	cloud "github.com/nerrad567/midea-bridge/internal/midea"
	"github.com/nerrad567/midea-bridge/internal/midea/ac"
)

// Device is one air conditioner as the engine sees it. *ac.Appliance
// implements it.
type Device interface {
	// Refresh reads the current state from the unit.
	Refresh(ctx context.Context) error

	// Set stages a native value for a read-write property.
	Set(p codec.Property, v any) error

	// Apply sends staged values to the unit.
	Apply(ctx context.Context) error

	// Values returns the known state keyed by property.
	Values() map[codec.Property]any
}

// ApplianceLister lists appliances on the cloud account. *cloud.Client
// implements it.
type ApplianceLister interface {
	ListAppliances(ctx context.Context, homeGroupID string) ([]cloud.ApplianceInfo, error)
}

// DeviceFactory builds a Device from a roster record.
type DeviceFactory func(info cloud.ApplianceInfo) (Device, error)

// DeviceConfig identifies one configured unit.
type DeviceConfig struct {
	// Name is the join key used in item names.
	Name string

	// ID is the cloud appliance id.
	ID string

	// IP and Port are the unit's LAN address. They are informational; all
	// traffic goes through the cloud.
	IP   string
	Port int
}

// RosterEntry is one matched device.
type RosterEntry struct {
	Config DeviceConfig
	Info   cloud.ApplianceInfo
	Device Device
}

// Roster maps configured device names to cloud appliances.
//
// Thread Safety:
//   - Lookups never block on Refresh; they see either the previous or the
//     new roster in full.
//   - Concurrent Refresh calls share one cloud request.
type Roster struct {
	configs  []DeviceConfig
	lister   ApplianceLister
	factory  DeviceFactory
	homeID   string
	entries  atomic.Pointer[map[string]RosterEntry]
	refresh  singleflight.Group
	onChange func(n int)

	logger   Logger
	loggerMu sync.RWMutex
}

// RosterOptions configures a Roster.
type RosterOptions struct {
	Devices     []DeviceConfig
	Lister      ApplianceLister
	HomeGroupID string

	// Factory builds devices. Defaults to an ac.Appliance that talks
	// through Transport.
	Factory   DeviceFactory
	Transport ac.Transport

	// OnChange is called with the device count after every refresh.
	OnChange func(n int)
}

// NewRoster creates an empty roster. Call Refresh to populate it.
func NewRoster(opts RosterOptions) *Roster {
	factory := opts.Factory
	if factory == nil {
		transport := opts.Transport
		factory = func(info cloud.ApplianceInfo) (Device, error) {
			return ac.New(info, transport)
		}
	}

	r := &Roster{
		configs:  opts.Devices,
		lister:   opts.Lister,
		factory:  factory,
		homeID:   opts.HomeGroupID,
		onChange: opts.OnChange,
	}
	empty := map[string]RosterEntry{}
	r.entries.Store(&empty)
	return r
}

// SetLogger sets the logger for the roster.
func (r *Roster) SetLogger(logger Logger) {
	r.loggerMu.Lock()
	r.logger = logger
	r.loggerMu.Unlock()
}

// Names returns the configured device names in configuration order.
func (r *Roster) Names() []string {
	names := make([]string, len(r.configs))
	for i, c := range r.configs {
		names[i] = c.Name
	}
	return names
}

// Lookup returns the device registered under name.
func (r *Roster) Lookup(name string) (Device, error) {
	entry, ok := (*r.entries.Load())[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, name)
	}
	return entry.Device, nil
}

// Entries returns the current roster sorted by name.
func (r *Roster) Entries() []RosterEntry {
	current := *r.entries.Load()
	out := make([]RosterEntry, 0, len(current))
	for _, e := range current {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Config.Name < out[j].Config.Name })
	return out
}

// Refresh re-reads the appliance list and swaps in a new roster. Air
// conditioners are matched to configured devices by appliance id; other
// appliance types and unmatched ids are skipped. A device already in the
// roster under the same id is kept, so its last known state survives. On
// error the previous roster stays in place.
func (r *Roster) Refresh(ctx context.Context) error {
	_, err, shared := r.refresh.Do("roster", func() (any, error) {
		return nil, r.load(ctx)
	})
	if shared {
		r.logDebug("joined in-flight roster refresh")
	}
	return err
}

func (r *Roster) load(ctx context.Context) error {
	infos, err := r.lister.ListAppliances(ctx, r.homeID)
	if err != nil {
		return fmt.Errorf("list appliances: %w", err)
	}

	byID := make(map[string]cloud.ApplianceInfo, len(infos))
	for _, info := range infos {
		if !ac.IsAirConditioner(info) {
			r.logDebug("skipping appliance", "id", info.ID, "type", info.Type)
			continue
		}
		byID[info.ID] = info
	}

	current := *r.entries.Load()
	next := make(map[string]RosterEntry, len(r.configs))
	for _, cfg := range r.configs {
		info, ok := byID[cfg.ID]
		if !ok {
			r.logWarn("configured device not found in cloud roster", "device", cfg.Name, "id", cfg.ID)
			continue
		}
		if prev, ok := current[cfg.Name]; ok && prev.Info.ID == info.ID {
			next[cfg.Name] = RosterEntry{Config: cfg, Info: info, Device: prev.Device}
			continue
		}
		dev, err := r.factory(info)
		if err != nil {
			r.logWarn("cannot build device", "device", cfg.Name, "error", err)
			continue
		}
		next[cfg.Name] = RosterEntry{Config: cfg, Info: info, Device: dev}
	}

	r.entries.Store(&next)
	if r.onChange != nil {
		r.onChange(len(next))
	}
	r.logInfo("roster refreshed", "devices", len(next), "appliances", len(infos))

	if len(next) == 0 && len(r.configs) > 0 {
		return ErrNoDevices
	}
	return nil
}

func (r *Roster) getLogger() Logger {
	r.loggerMu.RLock()
	defer r.loggerMu.RUnlock()
	return r.logger
}

func (r *Roster) logDebug(msg string, args ...any) {
	if l := r.getLogger(); l != nil {
		l.Debug(msg, args...)
	}
}

func (r *Roster) logInfo(msg string, args ...any) {
	if l := r.getLogger(); l != nil {
		l.Info(msg, args...)
	}
}

func (r *Roster) logWarn(msg string, args ...any) {
	if l := r.getLogger(); l != nil {
		l.Warn(msg, args...)
	}
}
