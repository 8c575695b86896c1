package midea

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/midea-bridge/internal/codec"
)

const defaultHealthInterval = 30 * time.Second

// Reporter lifecycle phases.
const (
	phaseStarting int32 = iota
	phaseRunning
	phaseStopping
)

// Publisher sends MQTT messages. *mqtt.Client implements it.
type Publisher interface {
	// Publish sends a message to a topic with the specified QoS and retention.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// IsConnected returns true if the publisher is connected.
	IsConnected() bool
}

// SessionChecker reports whether the cloud session is live.
// *cloud.Client implements it.
type SessionChecker interface {
	LoggedIn() bool
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	// BridgeID names the bridge in health messages.
	BridgeID string

	// Version is the bridge software version.
	Version string

	// TopicPrefix defaults to DefaultTopicPrefix.
	TopicPrefix string

	// Interval is how often to publish. Default: 30 seconds.
	Interval time.Duration

	Publisher Publisher
	Cloud     SessionChecker
}

// HealthReporter publishes retained bridge health at a fixed interval.
type HealthReporter struct {
	bridgeID  string
	version   string
	prefix    string
	startTime time.Time
	interval  time.Duration
	publisher Publisher
	cloud     SessionChecker

	deviceCount   int
	deviceCountMu sync.RWMutex

	phase atomic.Int32

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewHealthReporter creates a new health reporter.
//
// Parameters:
//   - cfg: Configuration for the health reporter
//
// Returns:
//   - *HealthReporter: Ready to start (call Start to begin reporting)
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultHealthInterval
	}
	prefix := cfg.TopicPrefix
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}

	return &HealthReporter{
		bridgeID:  cfg.BridgeID,
		version:   cfg.Version,
		prefix:    prefix,
		startTime: time.Now(),
		interval:  interval,
		publisher: cfg.Publisher,
		cloud:     cfg.Cloud,
		done:      make(chan struct{}),
	}
}

// Start begins periodic health reporting.
func (h *HealthReporter) Start(ctx context.Context) {
	h.phase.Store(phaseRunning)
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop ends reporting and publishes a final "stopping" status.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		h.phase.Store(phaseStopping)
		close(h.done)
		h.wg.Wait()

		//nolint:errcheck // best-effort during shutdown
		h.publishStatus(HealthStopping, "")
	})
}

// SetDeviceCount updates the managed device count.
func (h *HealthReporter) SetDeviceCount(count int) {
	h.deviceCountMu.Lock()
	h.deviceCount = count
	h.deviceCountMu.Unlock()
}

// SetLogger sets the logger for this reporter.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// PublishStarting publishes a "starting" status.
func (h *HealthReporter) PublishStarting() error {
	return h.publishStatus(HealthStarting, "bridge starting")
}

// PublishNow publishes the current status immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.Status()
	return h.publishStatus(status, reason)
}

// LastWill returns the topic and payload to register as the MQTT last will
// for a bridge publishing under prefix.
func LastWill(bridgeID, prefix string) (string, []byte, error) {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	payload, err := json.Marshal(NewLWTMessage(bridgeID))
	return HealthTopic(prefix), payload, err
}

// Status evaluates the current bridge status. It is "starting" until Start
// has been called and "stopping" after Stop.
func (h *HealthReporter) Status() (HealthStatus, string) {
	switch h.phase.Load() {
	case phaseStarting:
		return HealthStarting, "bridge starting"
	case phaseStopping:
		return HealthStopping, ""
	}
	if h.publisher != nil && !h.publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}
	if h.cloud != nil && !h.cloud.LoggedIn() {
		return HealthDegraded, "cloud session not established"
	}
	h.deviceCountMu.RLock()
	devices := h.deviceCount
	h.deviceCountMu.RUnlock()
	if devices == 0 {
		return HealthDegraded, "no devices in roster"
	}
	return HealthHealthy, ""
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	if err := h.PublishNow(); err != nil {
		h.logError("failed to publish initial health", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logError("failed to publish health", err)
			}
		}
	}
}

func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	if h.publisher == nil {
		return nil
	}

	h.deviceCountMu.RLock()
	devices := h.deviceCount
	h.deviceCountMu.RUnlock()

	loggedIn := h.cloud != nil && h.cloud.LoggedIn()
	msg := NewHealthMessage(h.bridgeID, h.version, status, loggedIn, devices, h.startTime)
	msg.Reason = reason

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return h.publisher.Publish(HealthTopic(h.prefix), payload, 1, true)
}

func (h *HealthReporter) logError(msg string, err error) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}

// StateMirror republishes committed property values as retained MQTT
// messages so other consumers can follow the units without polling the hub.
type StateMirror struct {
	publisher Publisher
	prefix    string
	qos       byte
}

// NewStateMirror creates a mirror publishing under prefix.
func NewStateMirror(publisher Publisher, prefix string, qos byte) *StateMirror {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return &StateMirror{publisher: publisher, prefix: prefix, qos: qos}
}

// PublishState publishes one value. Values are dropped while disconnected.
func (m *StateMirror) PublishState(device string, p codec.Property, value string) error {
	if !m.publisher.IsConnected() {
		return nil
	}
	return m.publisher.Publish(StateTopic(m.prefix, device, p), []byte(value), m.qos, true)
}
