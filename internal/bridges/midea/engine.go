package midea

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/midea-bridge/internal/codec"
	"github.com/nerrad567/midea-bridge/internal/metrics"
	cloud "github.com/nerrad567/midea-bridge/internal/midea"
)

// DefaultItemPrefix is the first segment of every item name.
const DefaultItemPrefix = "ac"

// Logger is the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Hub writes item states. *openhab.Client implements it.
type Hub interface {
	SetState(ctx context.Context, item, value string) error
}

// DeviceSource resolves device names and refreshes the mapping.
// *Roster implements it.
type DeviceSource interface {
	Lookup(name string) (Device, error)
	Refresh(ctx context.Context) error
}

// StatePublisher mirrors values the engine pushed to the hub.
type StatePublisher interface {
	PublishState(device string, p codec.Property, value string) error
}

// SnapshotWriter records refreshed device values as telemetry.
type SnapshotWriter interface {
	WriteSnapshot(device string, values map[codec.Property]any, at time.Time)
}

// Result summarises one ObserveDeviceSnapshot pass.
type Result struct {
	// PassID correlates the pass's log lines.
	PassID string

	Device  string
	Pushed  []codec.Property
	Failed  []codec.Property
	Skipped int
}

// EngineOptions configures an Engine.
type EngineOptions struct {
	// Devices resolves device names. Required.
	Devices DeviceSource

	// Hub receives device values. Required.
	Hub Hub

	// DeviceNames seeds the store.
	DeviceNames []string

	// ItemPrefix defaults to DefaultItemPrefix.
	ItemPrefix string

	// Optional collaborators.
	Metrics   *metrics.Metrics
	Publisher StatePublisher
	Telemetry SnapshotWriter
	Logger    Logger
}

// Engine propagates property changes between devices and the hub.
//
// Thread Safety:
//   - Work on one device is strictly sequential: a per-device lock is held
//     from reading the cache to committing it. Different devices proceed
//     independently.
type Engine struct {
	devices   DeviceSource
	hub       Hub
	store     *SyncStore
	prefix    string
	metrics   *metrics.Metrics
	publisher StatePublisher
	telemetry SnapshotWriter
	now       func() time.Time

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	refreshMu   sync.RWMutex
	lastRefresh map[string]time.Time

	logger   Logger
	loggerMu sync.RWMutex
}

// NewEngine creates an engine with an unset store.
func NewEngine(opts EngineOptions) (*Engine, error) {
	if opts.Devices == nil {
		return nil, fmt.Errorf("device source is required")
	}
	if opts.Hub == nil {
		return nil, fmt.Errorf("hub is required")
	}
	prefix := opts.ItemPrefix
	if prefix == "" {
		prefix = DefaultItemPrefix
	}

	return &Engine{
		devices:     opts.Devices,
		hub:         opts.Hub,
		store:       NewSyncStore(opts.DeviceNames),
		prefix:      prefix,
		metrics:     opts.Metrics,
		publisher:   opts.Publisher,
		telemetry:   opts.Telemetry,
		now:         time.Now,
		locks:       make(map[string]*sync.Mutex),
		lastRefresh: make(map[string]time.Time),
		logger:      opts.Logger,
	}, nil
}

// SetLogger sets the logger for the engine.
func (e *Engine) SetLogger(logger Logger) {
	e.loggerMu.Lock()
	e.logger = logger
	e.loggerMu.Unlock()
}

// ItemName returns the hub item for a device property.
func (e *Engine) ItemName(device string, p codec.Property) string {
	return e.prefix + "_" + device + "_" + string(p)
}

// ParseItemName splits an item into device and property. The device must
// be one of devices and the property must be in the catalogue.
func (e *Engine) ParseItemName(item string, devices []string) (string, codec.Property, error) {
	rest, ok := strings.CutPrefix(item, e.prefix+"_")
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrInvalidItem, item)
	}
	for _, d := range devices {
		prop, ok := strings.CutPrefix(rest, d+"_")
		if !ok {
			continue
		}
		if _, known := codec.Lookup(codec.Property(prop)); !known {
			return "", "", fmt.Errorf("%w: %s: unknown property %q", ErrInvalidItem, item, prop)
		}
		return d, codec.Property(prop), nil
	}
	return "", "", fmt.Errorf("%w: %s: no such device", ErrInvalidItem, item)
}

// Snapshot returns a copy of both caches for every device.
func (e *Engine) Snapshot() map[string]DeviceValues {
	return e.store.Snapshot()
}

// LastRefresh returns when device last had fresh values, zero if never.
func (e *Engine) LastRefresh(device string) time.Time {
	e.refreshMu.RLock()
	defer e.refreshMu.RUnlock()
	return e.lastRefresh[device]
}

func (e *Engine) markRefreshed(device string) {
	at := e.now()
	e.refreshMu.Lock()
	e.lastRefresh[device] = at
	e.refreshMu.Unlock()
}

// PollDevice refreshes a device and observes the result, holding the
// device's lock throughout. The refresh time is recorded only on success.
func (e *Engine) PollDevice(ctx context.Context, device string) (Result, error) {
	lock := e.deviceLock(device)
	lock.Lock()
	defer lock.Unlock()

	dev, err := e.devices.Lookup(device)
	if err != nil {
		return Result{Device: device}, err
	}

	e.logDebug("refreshing device", "device", device)
	if err := dev.Refresh(ctx); err != nil {
		outcome := metrics.OutcomeError
		if errors.Is(err, cloud.ErrDeviceOffline) {
			outcome = metrics.OutcomeOffline
		}
		e.metrics.Refresh(device, outcome, e.now())
		return Result{Device: device}, fmt.Errorf("refresh %s: %w", device, err)
	}

	at := e.now()
	e.markRefreshed(device)
	e.metrics.Refresh(device, metrics.OutcomeOK, at)

	values := dev.Values()
	if e.telemetry != nil {
		e.telemetry.WriteSnapshot(device, values, at)
	}
	return e.observeSnapshot(ctx, device, values), nil
}

// ObserveDeviceSnapshot pushes every property whose value differs from what
// the hub is known to hold. Unset values and values that cannot be coerced
// are skipped. A failed push leaves the cache untouched so the same value is
// pushed again on the next observation.
func (e *Engine) ObserveDeviceSnapshot(ctx context.Context, device string, snapshot map[codec.Property]any) Result {
	lock := e.deviceLock(device)
	lock.Lock()
	defer lock.Unlock()

	return e.observeSnapshot(ctx, device, snapshot)
}

func (e *Engine) observeSnapshot(ctx context.Context, device string, snapshot map[codec.Property]any) Result {
	res := Result{PassID: uuid.NewString(), Device: device}

	for _, p := range codec.All() {
		native, ok := snapshot[p]
		if !ok || codec.IsUnset(native) {
			res.Skipped++
			continue
		}

		value, err := codec.ToHubString(p, native)
		if err != nil {
			e.logWarn("cannot convert device value",
				"pass", res.PassID, "device", device, "property", p, "value", native, "error", err)
			res.Skipped++
			continue
		}

		if value == e.store.Get(device, SideHub, p) {
			continue
		}

		item := e.ItemName(device, p)
		if err := e.hub.SetState(ctx, item, value); err != nil {
			e.logWarn("hub push failed",
				"pass", res.PassID, "device", device, "item", item, "value", value, "error", err)
			e.metrics.HubPush(device, metrics.OutcomeError)
			res.Failed = append(res.Failed, p)
			continue
		}

		e.store.Commit(device, p, value)
		e.metrics.HubPush(device, metrics.OutcomeOK)
		e.mirror(device, p, value)
		res.Pushed = append(res.Pushed, p)
		e.logDebug("pushed to hub", "pass", res.PassID, "item", item, "value", value)
	}

	return res
}

// ObserveHubChange applies a hub-side change of a read-write property to
// the device. Values equal to what the device is known to hold are ignored.
// When the device is offline the change is dropped and the roster is
// refreshed before returning.
//
// Returns:
//   - error: ErrReadOnlyProperty, codec errors, ErrUnknownDevice, or the
//     device error (matching cloud.ErrDeviceOffline when offline)
func (e *Engine) ObserveHubChange(ctx context.Context, device string, p codec.Property, raw string) error {
	spec, ok := codec.Lookup(p)
	if !ok {
		return fmt.Errorf("%w: %q", codec.ErrUnknownProperty, p)
	}
	if spec.Direction != codec.ReadWrite {
		return fmt.Errorf("%w: %s", ErrReadOnlyProperty, p)
	}

	value, err := codec.Canonical(p, raw)
	if err != nil {
		return err
	}
	if value == codec.Unset {
		return nil
	}

	lock := e.deviceLock(device)
	lock.Lock()
	defer lock.Unlock()

	if value == e.store.Get(device, SideDevice, p) {
		e.metrics.DevicePush(device, metrics.OutcomeSkipped)
		return nil
	}

	native, err := codec.ToDeviceValue(p, value)
	if err != nil {
		return err
	}

	dev, err := e.devices.Lookup(device)
	if err != nil {
		return err
	}

	e.logDebug("pushing to device", "device", device, "property", p, "value", value)
	if err := dev.Set(p, native); err != nil {
		e.metrics.DevicePush(device, metrics.OutcomeError)
		return fmt.Errorf("set %s on %s: %w", p, device, err)
	}
	if err := dev.Apply(ctx); err != nil {
		if errors.Is(err, cloud.ErrDeviceOffline) {
			e.metrics.DevicePush(device, metrics.OutcomeOffline)
			e.logWarn("device offline, dropping change and refreshing roster", "device", device, "property", p)
			if rerr := e.devices.Refresh(ctx); rerr != nil {
				e.logError("roster refresh failed", "error", rerr)
			}
			return fmt.Errorf("apply %s: %w", device, err)
		}
		e.metrics.DevicePush(device, metrics.OutcomeError)
		return fmt.Errorf("apply %s: %w", device, err)
	}

	e.store.Commit(device, p, value)
	e.markRefreshed(device)
	e.metrics.DevicePush(device, metrics.OutcomeOK)
	e.mirror(device, p, value)
	return nil
}

// mirror publishes a committed value when a publisher is configured.
func (e *Engine) mirror(device string, p codec.Property, value string) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.PublishState(device, p, value); err != nil {
		e.logDebug("state mirror publish failed", "device", device, "property", p, "error", err)
	}
}

func (e *Engine) deviceLock(device string) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()

	l, ok := e.locks[device]
	if !ok {
		l = &sync.Mutex{}
		e.locks[device] = l
	}
	return l
}

func (e *Engine) getLogger() Logger {
	e.loggerMu.RLock()
	defer e.loggerMu.RUnlock()
	return e.logger
}

func (e *Engine) logDebug(msg string, keysAndValues ...any) {
	if l := e.getLogger(); l != nil {
		l.Debug(msg, keysAndValues...)
	}
}

func (e *Engine) logWarn(msg string, keysAndValues ...any) {
	if l := e.getLogger(); l != nil {
		l.Warn(msg, keysAndValues...)
	}
}

func (e *Engine) logError(msg string, keysAndValues ...any) {
	if l := e.getLogger(); l != nil {
		l.Error(msg, keysAndValues...)
	}
}
