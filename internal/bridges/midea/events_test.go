package midea

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/midea-bridge/internal/codec"
	"github.com/nerrad567/midea-bridge/internal/openhab"
)

// mockEventSource replays a batch of events per subscription and then
// returns the next scripted error.
type mockEventSource struct {
	mu        sync.Mutex
	batches   [][]openhab.Event
	errs      []error
	subscribe int
}

func (s *mockEventSource) Subscribe(ctx context.Context, handler func(openhab.Event)) error {
	s.mu.Lock()
	n := s.subscribe
	s.subscribe++
	var batch []openhab.Event
	if n < len(s.batches) {
		batch = s.batches[n]
	}
	var err error
	if n < len(s.errs) {
		err = s.errs[n]
	}
	s.mu.Unlock()

	for _, e := range batch {
		handler(e)
	}
	if err != nil {
		return err
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *mockEventSource) subscriptions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribe
}

func stateEvent(item, value string) openhab.Event {
	return openhab.Event{
		Topic:   "openhab/items/" + item + "/statechanged",
		Type:    openhab.EventItemStateChanged,
		Payload: `{"type":"String","value":"` + value + `"}`,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestEventWorker_AppliesItemChanges(t *testing.T) {
	dev := newMockDevice(nil)
	e, _ := newTestEngine(t, newMockHub(), map[string]Device{"Aircon1": dev})
	src := &mockEventSource{batches: [][]openhab.Event{{
		stateEvent("ac_Aircon1_power_state", "OFF"),
		stateEvent("ac_Aircon1_target_temperature", "21.5"),
	}}}

	w := NewEventWorker(e, src, EventWorkerConfig{Devices: []string{"Aircon1"}})
	w.Start(context.Background())
	waitFor(t, "both changes", func() bool {
		return e.store.Get("Aircon1", SideDevice, codec.TargetTemperature) == "21.5"
	})
	w.Stop()

	if got := e.store.Get("Aircon1", SideDevice, codec.PowerState); got != "OFF" {
		t.Errorf("power_state cache = %q, want OFF", got)
	}
	if dev.applies != 2 {
		t.Errorf("applies = %d, want 2", dev.applies)
	}
}

func TestEventWorker_IgnoresIrrelevantEvents(t *testing.T) {
	dev := newMockDevice(nil)
	e, _ := newTestEngine(t, newMockHub(), map[string]Device{"Aircon1": dev})
	src := &mockEventSource{batches: [][]openhab.Event{{
		// Read-only property.
		stateEvent("ac_Aircon1_indoor_temperature", "30.0"),
		// Not a bridge item.
		stateEvent("Kitchen_Light", "ON"),
		// Unconfigured device.
		stateEvent("ac_Bedroom_power_state", "ON"),
		// Event type without a value.
		{Topic: "openhab/items/ac_Aircon1_eco_mode/added", Type: "ItemAddedEvent", Payload: `{}`},
		// Malformed payload.
		{Topic: "openhab/items/ac_Aircon1_turbo_mode/state", Type: openhab.EventItemState, Payload: `not json`},
		// Marker so the test knows the batch was consumed.
		stateEvent("ac_Aircon1_swing_mode", "0"),
	}}}

	w := NewEventWorker(e, src, EventWorkerConfig{Devices: []string{"Aircon1"}})
	w.Start(context.Background())
	waitFor(t, "marker event", func() bool {
		return e.store.Get("Aircon1", SideDevice, codec.SwingMode) == "0.0"
	})
	w.Stop()

	if dev.applies != 1 {
		t.Errorf("applies = %d, want only the marker", dev.applies)
	}
	for _, p := range []codec.Property{codec.IndoorTemperature, codec.EcoMode, codec.TurboMode} {
		if got := e.store.Get("Aircon1", SideDevice, p); got != codec.Unset {
			t.Errorf("%s cache = %q, want unset", p, got)
		}
	}
}

func TestEventWorker_ContinuesAfterHandlerError(t *testing.T) {
	dev := newMockDevice(nil)
	e, _ := newTestEngine(t, newMockHub(), map[string]Device{"Aircon1": dev})
	src := &mockEventSource{batches: [][]openhab.Event{{
		stateEvent("ac_Aircon1_operational_mode", "42"),
		stateEvent("ac_Aircon1_eco_mode", "ON"),
	}}}

	w := NewEventWorker(e, src, EventWorkerConfig{Devices: []string{"Aircon1"}})
	w.Start(context.Background())
	waitFor(t, "second event", func() bool {
		return e.store.Get("Aircon1", SideDevice, codec.EcoMode) == "ON"
	})
	w.Stop()
}

func TestEventWorker_Resubscribes(t *testing.T) {
	e, _ := newTestEngine(t, newMockHub(), map[string]Device{"Aircon1": newMockDevice(nil)})
	src := &mockEventSource{errs: []error{
		openhab.ErrStreamClosed,
		errors.New("connection reset"),
	}}

	w := NewEventWorker(e, src, EventWorkerConfig{
		Devices: []string{"Aircon1"},
		Backoff: 5 * time.Millisecond,
	})
	w.Start(context.Background())
	waitFor(t, "third subscription", func() bool { return src.subscriptions() >= 3 })
	w.Stop()
}

func TestEventWorker_StopDuringBackoff(t *testing.T) {
	e, _ := newTestEngine(t, newMockHub(), nil)
	src := &mockEventSource{errs: []error{errors.New("refused")}}

	w := NewEventWorker(e, src, EventWorkerConfig{Backoff: time.Hour})
	w.Start(context.Background())
	waitFor(t, "first subscription", func() bool { return src.subscriptions() == 1 })

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop() did not interrupt the backoff")
	}
	w.Stop()
}

func TestNewEventWorker_DefaultBackoff(t *testing.T) {
	w := NewEventWorker(nil, &mockEventSource{}, EventWorkerConfig{})
	if w.backoff != DefaultEventBackoff {
		t.Errorf("backoff = %v, want %v", w.backoff, DefaultEventBackoff)
	}
	w.Stop()
}
