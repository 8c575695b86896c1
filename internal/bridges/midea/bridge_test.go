package midea

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/midea-bridge/internal/codec"
	"github.com/nerrad567/midea-bridge/internal/metrics"
	cloud "github.com/nerrad567/midea-bridge/internal/midea"
)

// mockTransport fails every command, which keeps appliances at their
// roster state.
type mockTransport struct {
	mu    sync.Mutex
	calls int
	sent  [][]byte
}

func (m *mockTransport) SendTransparentCommand(_ context.Context, _ string, payload []byte) ([]byte, error) {
	m.mu.Lock()
	m.calls++
	m.sent = append(m.sent, payload)
	m.mu.Unlock()
	return nil, cloud.ErrDeviceOffline
}

// mockCloud satisfies Cloud.
type mockCloud struct {
	mockLister
	mockTransport
	mockSession
}

func newMockCloud() *mockCloud {
	c := &mockCloud{}
	c.infos = testAppliances()
	c.loggedIn = true
	return c
}

func testBridgeOptions(c Cloud) BridgeOptions {
	return BridgeOptions{
		Version: "test",
		Devices: []DeviceConfig{
			{Name: "Lounge", ID: "1001", IP: "192.168.1.40", Port: 6444},
			{Name: "Garage", ID: "9999"},
		},
		PollInterval: time.Hour,
		Tick:         time.Hour,
		EventBackoff: time.Hour,
		Cloud:        c,
		Hub:          newMockHub(),
		Events:       &mockEventSource{},
		Metrics:      metrics.New(),
	}
}

func TestNewBridge_Validation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*BridgeOptions)
		want   string
	}{
		{"no cloud", func(o *BridgeOptions) { o.Cloud = nil }, "cloud client is required"},
		{"no hub", func(o *BridgeOptions) { o.Hub = nil }, "hub client is required"},
		{"no events", func(o *BridgeOptions) { o.Events = nil }, "event source is required"},
		{"no devices", func(o *BridgeOptions) { o.Devices = nil }, "at least one device is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testBridgeOptions(newMockCloud())
			tt.modify(&opts)
			_, err := NewBridge(opts)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("NewBridge() error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestBridge_StartAndStop(t *testing.T) {
	c := newMockCloud()
	pub := &mockPublisher{connected: true}
	opts := testBridgeOptions(c)
	opts.MQTT = pub

	b, err := NewBridge(opts)
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	if status, _ := b.Health(); status != HealthStarting {
		t.Errorf("Health() before Start = %s, want starting", status)
	}

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if len(b.roster.Entries()) != 1 {
		t.Errorf("roster entries = %d, want 1", len(b.roster.Entries()))
	}
	if c.mockTransport.calls == 0 {
		t.Error("Start should poll every matched device")
	}
	if status, reason := b.Health(); status != HealthHealthy {
		t.Errorf("Health() after Start = (%s, %q), want healthy", status, reason)
	}
	if err := b.PublishHealth(); err != nil {
		t.Errorf("PublishHealth() error = %v", err)
	}

	b.Stop()
	b.Stop()

	msg, ok := pub.last("midea/health")
	if !ok {
		t.Fatal("no health published")
	}
	if got := decodeHealth(t, msg); got.Status != HealthStopping {
		t.Errorf("final health = %s, want stopping", got.Status)
	}
}

func TestBridge_StartFailsWithoutRoster(t *testing.T) {
	c := newMockCloud()
	c.mockLister.err = errors.New("cloud down")

	b, err := NewBridge(testBridgeOptions(c))
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Start(context.Background()); err == nil {
		t.Fatal("Start() should fail when the roster cannot be loaded")
	}
	b.Stop()
}

func TestBridge_Devices(t *testing.T) {
	c := newMockCloud()
	b, err := NewBridge(testBridgeOptions(c))
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer b.Stop()

	devices := b.Devices()
	if len(devices) != 2 {
		t.Fatalf("Devices() = %d entries, want 2", len(devices))
	}

	lounge := devices[0]
	if lounge.Name != "Lounge" || !lounge.Matched || lounge.Model != "MSAG" || lounge.Serial != "SN1" {
		t.Errorf("Lounge status = %+v", lounge)
	}
	if lounge.IP != "192.168.1.40" || lounge.Port != 6444 {
		t.Errorf("Lounge address = %s:%d", lounge.IP, lounge.Port)
	}
	if !lounge.Online {
		t.Error("Lounge should be online per the roster")
	}
	if lounge.LastRefresh != nil {
		t.Error("LastRefresh should be nil when every poll failed")
	}

	garage := devices[1]
	if garage.Name != "Garage" || garage.Matched || garage.Online {
		t.Errorf("Garage status = %+v", garage)
	}

	if _, err := b.Device("Bedroom"); !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("Device(Bedroom) error = %v, want ErrUnknownDevice", err)
	}
}

func TestBridge_DeviceOnlineFollowsCache(t *testing.T) {
	b, err := NewBridge(testBridgeOptions(newMockCloud()))
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer b.Stop()

	b.engine.store.Commit("Lounge", codec.Online, codec.Off)
	b.engine.store.Commit("Lounge", codec.PowerState, codec.On)

	st, err := b.Device("Lounge")
	if err != nil {
		t.Fatal(err)
	}
	if st.Online {
		t.Error("cached online=OFF should override the roster status")
	}
	if st.Values.Hub[codec.PowerState] != codec.On {
		t.Errorf("values = %+v", st.Values.Hub)
	}
}
