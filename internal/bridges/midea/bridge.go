package midea

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/midea-bridge/internal/metrics"
	"github.com/nerrad567/midea-bridge/internal/midea/ac"
)

// Cloud is everything the bridge needs from the cloud client.
// *cloud.Client implements it.
type Cloud interface {
	ApplianceLister
	ac.Transport
	SessionChecker
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	// ID names the bridge in health messages. Default: "midea".
	ID      string
	Version string

	Devices     []DeviceConfig
	HomeGroupID string
	ItemPrefix  string

	PollInterval time.Duration
	Tick         time.Duration
	EventBackoff time.Duration

	// Cloud, Hub and Events are required.
	Cloud  Cloud
	Hub    Hub
	Events EventSource

	// MQTT is optional. When set the bridge publishes health and mirrors
	// pushed values under TopicPrefix.
	MQTT           Publisher
	TopicPrefix    string
	QoS            byte
	HealthInterval time.Duration

	// Telemetry is optional.
	Telemetry SnapshotWriter

	Metrics *metrics.Metrics
	Logger  Logger
}

// Bridge runs the roster, engine, scheduler, event worker and health
// reporter as one unit.
type Bridge struct {
	roster    *Roster
	engine    *Engine
	scheduler *Scheduler
	worker    *EventWorker
	health    *HealthReporter

	stopOnce sync.Once
	logger   Logger
}

// NewBridge wires a bridge. Call Start to run it.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Cloud == nil {
		return nil, fmt.Errorf("cloud client is required")
	}
	if opts.Hub == nil {
		return nil, fmt.Errorf("hub client is required")
	}
	if opts.Events == nil {
		return nil, fmt.Errorf("event source is required")
	}
	if len(opts.Devices) == 0 {
		return nil, fmt.Errorf("at least one device is required")
	}
	id := opts.ID
	if id == "" {
		id = "midea"
	}

	health := NewHealthReporter(HealthReporterConfig{
		BridgeID:    id,
		Version:     opts.Version,
		TopicPrefix: opts.TopicPrefix,
		Interval:    opts.HealthInterval,
		Publisher:   opts.MQTT,
		Cloud:       opts.Cloud,
	})

	roster := NewRoster(RosterOptions{
		Devices:     opts.Devices,
		Lister:      opts.Cloud,
		HomeGroupID: opts.HomeGroupID,
		Transport:   opts.Cloud,
		OnChange: func(n int) {
			health.SetDeviceCount(n)
			opts.Metrics.RosterSize(n)
		},
	})

	var publisher StatePublisher
	if opts.MQTT != nil {
		publisher = NewStateMirror(opts.MQTT, opts.TopicPrefix, opts.QoS)
	}

	engine, err := NewEngine(EngineOptions{
		Devices:     roster,
		Hub:         opts.Hub,
		DeviceNames: roster.Names(),
		ItemPrefix:  opts.ItemPrefix,
		Metrics:     opts.Metrics,
		Publisher:   publisher,
		Telemetry:   opts.Telemetry,
	})
	if err != nil {
		return nil, err
	}

	b := &Bridge{
		roster: roster,
		engine: engine,
		scheduler: NewScheduler(engine, SchedulerConfig{
			Devices:      roster.Names(),
			PollInterval: opts.PollInterval,
			Tick:         opts.Tick,
		}),
		worker: NewEventWorker(engine, opts.Events, EventWorkerConfig{
			Devices: roster.Names(),
			Backoff: opts.EventBackoff,
			Metrics: opts.Metrics,
		}),
		health: health,
	}
	if opts.Logger != nil {
		b.SetLogger(opts.Logger)
	}
	return b, nil
}

// SetLogger sets the logger on every component.
func (b *Bridge) SetLogger(logger Logger) {
	b.logger = logger
	b.roster.SetLogger(logger)
	b.engine.SetLogger(logger)
	b.scheduler.SetLogger(logger)
	b.worker.SetLogger(logger)
	b.health.SetLogger(logger)
}

// Start loads the roster, syncs every device once, then starts polling,
// the event worker and health reporting.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	if err := b.roster.Refresh(ctx); err != nil {
		return fmt.Errorf("load roster: %w", err)
	}

	b.scheduler.Start(ctx)
	b.worker.Start(ctx)
	b.health.Start(ctx)

	if b.logger != nil {
		b.logger.Info("bridge started", "devices", len(b.roster.Entries()))
	}
	return nil
}

// Stop shuts every component down and waits for them.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.worker.Stop()
		b.scheduler.Stop()
		b.health.Stop()
		if b.logger != nil {
			b.logger.Info("bridge stopped")
		}
	})
}

// Health returns the current bridge status.
func (b *Bridge) Health() (HealthStatus, string) { return b.health.Status() }

// PublishHealth publishes the current status at once, e.g. after the MQTT
// connection comes back.
func (b *Bridge) PublishHealth() error {
	return b.health.PublishNow()
}

func (b *Bridge) logError(msg string, err error) {
	if b.logger != nil {
		b.logger.Error(msg, "error", err)
	}
}
