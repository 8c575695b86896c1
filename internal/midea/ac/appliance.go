package ac

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/nerrad567/midea-bridge/internal/codec"
	"github.com/nerrad567/midea-bridge/internal/midea"
)

// Transport sends frames to an appliance. *midea.Client implements it.
type Transport interface {
	SendTransparentCommand(ctx context.Context, applianceID string, payload []byte) ([]byte, error)
}

// State is the unit state known to the bridge.
type State struct {
	PowerState         bool
	TargetTemperature  float64
	OperationalMode    codec.Mode
	FanSpeed           codec.Fan
	SwingMode          codec.Swing
	EcoMode            bool
	TurboMode          bool
	IndoorTemperature  float64
	OutdoorTemperature float64

	// Active mirrors the roster's activation flag.
	Active bool
	// Online is true after the last exchange with the unit succeeded.
	Online bool
}

// Appliance is one air conditioner on the cloud account.
//
// Setters stage changes without touching the known state. Apply folds the
// staged changes onto the last state read from the unit and sends the
// result; staged changes are dropped whether or not the send succeeds.
//
// Thread Safety:
//   - All methods are safe for concurrent use; callers that need a
//     set-then-apply sequence to be atomic must serialise it themselves.
type Appliance struct {
	info      midea.ApplianceInfo
	transport Transport

	mu        sync.Mutex
	state     State
	pending   []func(*State)
	refreshed bool
}

// New builds an Appliance from a roster record.
//
// Returns:
//   - *Appliance: Ready to Refresh
//   - error: ErrNotAirConditioner when the record is another appliance type
func New(info midea.ApplianceInfo, transport Transport) (*Appliance, error) {
	if !IsAirConditioner(info) {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotAirConditioner, info.ID, info.Type)
	}
	return &Appliance{
		info:      info,
		transport: transport,
		state: State{
			Active: info.Active(),
			Online: info.Online(),
		},
	}, nil
}

// IsAirConditioner reports whether a roster record describes an AC unit.
func IsAirConditioner(info midea.ApplianceInfo) bool {
	t := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(info.Type)), "0x")
	n, err := strconv.ParseUint(t, 16, 8)
	return err == nil && n == TypeAirConditioner
}

// ID returns the cloud appliance id.
func (a *Appliance) ID() string { return a.info.ID }

// Name returns the name stored in the cloud.
func (a *Appliance) Name() string { return a.info.Name }

// Type returns the appliance type string from the roster.
func (a *Appliance) Type() string { return a.info.Type }

// Refresh queries the unit and replaces the known state.
func (a *Appliance) Refresh(ctx context.Context) error {
	reply, err := a.send(ctx, StatusQueryPacket())
	if err != nil {
		return err
	}
	return a.update(reply)
}

// Apply sends the staged settings to the unit in one set frame and updates
// the known state from the reply. A unit that has never answered a status
// query is queried first, so the frame never carries guessed fields.
func (a *Appliance) Apply(ctx context.Context) error {
	a.mu.Lock()
	refreshed := a.refreshed
	a.mu.Unlock()

	if !refreshed {
		if err := a.Refresh(ctx); err != nil {
			a.discard()
			return fmt.Errorf("read state before set: %w", err)
		}
	}

	a.mu.Lock()
	next := a.staged()
	a.pending = nil
	a.mu.Unlock()

	reply, err := a.send(ctx, SetPacket(next))
	if err != nil {
		return err
	}
	if err := a.update(reply); err != nil {
		// Some firmware answers a set frame with an empty acknowledgement.
		if errors.Is(err, ErrShortResponse) {
			a.mu.Lock()
			next.Active = a.state.Active
			next.Online = true
			a.state = next
			a.mu.Unlock()
			return nil
		}
		return err
	}
	return nil
}

// staged returns the known state with the pending changes applied.
// Callers hold a.mu.
func (a *Appliance) staged() State {
	s := a.state
	for _, fn := range a.pending {
		fn(&s)
	}
	return s
}

func (a *Appliance) discard() {
	a.mu.Lock()
	a.pending = nil
	a.mu.Unlock()
}

// State returns a copy of the known state.
func (a *Appliance) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Values returns the known state keyed by property. Before the first
// successful refresh every value is codec.Unset.
func (a *Appliance) Values() map[codec.Property]any {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(map[codec.Property]any, len(codec.All()))
	if !a.refreshed {
		for _, p := range codec.All() {
			out[p] = codec.Unset
		}
		return out
	}
	s := a.state
	out[codec.Active] = s.Active
	out[codec.Online] = s.Online
	out[codec.IndoorTemperature] = s.IndoorTemperature
	out[codec.OutdoorTemperature] = s.OutdoorTemperature
	out[codec.PowerState] = s.PowerState
	out[codec.TargetTemperature] = s.TargetTemperature
	out[codec.OperationalMode] = s.OperationalMode
	out[codec.FanSpeed] = s.FanSpeed
	out[codec.SwingMode] = s.SwingMode
	out[codec.EcoMode] = s.EcoMode
	out[codec.TurboMode] = s.TurboMode
	return out
}

// Set stages a native value for a read-write property. The change reaches
// the unit on the next Apply.
func (a *Appliance) Set(p codec.Property, v any) error {
	switch p {
	case codec.PowerState, codec.EcoMode, codec.TurboMode:
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("%w: %s wants bool, got %T", ErrUnsupportedValue, p, v)
		}
		switch p {
		case codec.PowerState:
			a.SetPowerState(b)
		case codec.EcoMode:
			a.SetEcoMode(b)
		default:
			a.SetTurboMode(b)
		}
	case codec.TargetTemperature:
		f, ok := v.(float64)
		if !ok {
			return fmt.Errorf("%w: %s wants float64, got %T", ErrUnsupportedValue, p, v)
		}
		a.SetTargetTemperature(f)
	case codec.OperationalMode:
		m, ok := v.(codec.Mode)
		if !ok {
			return fmt.Errorf("%w: %s wants codec.Mode, got %T", ErrUnsupportedValue, p, v)
		}
		a.SetOperationalMode(m)
	case codec.FanSpeed:
		f, ok := v.(codec.Fan)
		if !ok {
			return fmt.Errorf("%w: %s wants codec.Fan, got %T", ErrUnsupportedValue, p, v)
		}
		a.SetFanSpeed(f)
	case codec.SwingMode:
		s, ok := v.(codec.Swing)
		if !ok {
			return fmt.Errorf("%w: %s wants codec.Swing, got %T", ErrUnsupportedValue, p, v)
		}
		a.SetSwingMode(s)
	default:
		return fmt.Errorf("%w: %s", ErrReadOnly, p)
	}
	return nil
}

// PowerState returns whether the unit is on.
func (a *Appliance) PowerState() bool { return a.State().PowerState }

// TargetTemperature returns the set point in °C.
func (a *Appliance) TargetTemperature() float64 { return a.State().TargetTemperature }

// OperationalMode returns the operating mode.
func (a *Appliance) OperationalMode() codec.Mode { return a.State().OperationalMode }

// FanSpeed returns the fan speed.
func (a *Appliance) FanSpeed() codec.Fan { return a.State().FanSpeed }

// SwingMode returns the louvre swing setting.
func (a *Appliance) SwingMode() codec.Swing { return a.State().SwingMode }

// EcoMode returns whether eco mode is on.
func (a *Appliance) EcoMode() bool { return a.State().EcoMode }

// TurboMode returns whether turbo mode is on.
func (a *Appliance) TurboMode() bool { return a.State().TurboMode }

// IndoorTemperature returns the indoor sensor reading in °C.
func (a *Appliance) IndoorTemperature() float64 { return a.State().IndoorTemperature }

// OutdoorTemperature returns the outdoor sensor reading in °C.
func (a *Appliance) OutdoorTemperature() float64 { return a.State().OutdoorTemperature }

// Active returns the roster activation flag.
func (a *Appliance) Active() bool { return a.State().Active }

// Online returns whether the last exchange succeeded.
func (a *Appliance) Online() bool { return a.State().Online }

// SetPowerState stages the power setting.
func (a *Appliance) SetPowerState(on bool) { a.stage(func(s *State) { s.PowerState = on }) }

// SetTargetTemperature stages the set point, clamped to 16–31 °C.
func (a *Appliance) SetTargetTemperature(t float64) {
	a.stage(func(s *State) { s.TargetTemperature = clampTarget(t) })
}

// SetOperationalMode stages the operating mode.
func (a *Appliance) SetOperationalMode(m codec.Mode) { a.stage(func(s *State) { s.OperationalMode = m }) }

// SetFanSpeed stages the fan speed.
func (a *Appliance) SetFanSpeed(f codec.Fan) { a.stage(func(s *State) { s.FanSpeed = f }) }

// SetSwingMode stages the swing setting.
func (a *Appliance) SetSwingMode(m codec.Swing) { a.stage(func(s *State) { s.SwingMode = m }) }

// SetEcoMode stages eco mode.
func (a *Appliance) SetEcoMode(on bool) { a.stage(func(s *State) { s.EcoMode = on }) }

// SetTurboMode stages turbo mode.
func (a *Appliance) SetTurboMode(on bool) { a.stage(func(s *State) { s.TurboMode = on }) }

func (a *Appliance) stage(fn func(s *State)) {
	a.mu.Lock()
	a.pending = append(a.pending, fn)
	a.mu.Unlock()
}

func (a *Appliance) mutate(fn func(s *State)) {
	a.mu.Lock()
	fn(&a.state)
	a.mu.Unlock()
}

// send forwards a packet and tracks connectivity.
func (a *Appliance) send(ctx context.Context, packet []byte) ([]byte, error) {
	reply, err := a.transport.SendTransparentCommand(ctx, a.info.ID, packet)
	if err != nil {
		if errors.Is(err, midea.ErrDeviceOffline) {
			a.mutate(func(s *State) { s.Online = false })
		}
		return nil, err
	}
	return reply, nil
}

// update replaces the reported fields from a status reply.
func (a *Appliance) update(reply []byte) error {
	parsed, err := parseStatus(reply)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	parsed.Active = a.state.Active
	parsed.Online = true
	a.state = parsed
	a.refreshed = true
	return nil
}
