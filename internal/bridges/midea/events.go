package midea

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nerrad567/midea-bridge/internal/codec"
	"github.com/nerrad567/midea-bridge/internal/metrics"
	"github.com/nerrad567/midea-bridge/internal/openhab"
)

// DefaultEventBackoff is the wait before resubscribing after the stream
// drops or fails.
const DefaultEventBackoff = 5 * time.Second

// EventSource delivers hub events until it fails or ctx ends.
// *openhab.EventStream implements it.
type EventSource interface {
	Subscribe(ctx context.Context, handler func(openhab.Event)) error
}

// EventWorkerConfig configures an EventWorker.
type EventWorkerConfig struct {
	// Devices are the configured device names.
	Devices []string

	// Backoff defaults to DefaultEventBackoff.
	Backoff time.Duration

	Metrics *metrics.Metrics
}

// EventWorker owns the hub event subscription and feeds item changes to
// the engine. It resubscribes after every disconnect until stopped.
type EventWorker struct {
	engine  *Engine
	source  EventSource
	devices []string
	backoff time.Duration
	metrics *metrics.Metrics

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewEventWorker creates a worker. Call Start to subscribe.
func NewEventWorker(engine *Engine, source EventSource, cfg EventWorkerConfig) *EventWorker {
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = DefaultEventBackoff
	}
	return &EventWorker{
		engine:  engine,
		source:  source,
		devices: append([]string(nil), cfg.Devices...),
		backoff: backoff,
		metrics: cfg.Metrics,
		cancel:  func() {},
	}
}

// SetLogger sets the logger for the worker.
func (w *EventWorker) SetLogger(logger Logger) {
	w.loggerMu.Lock()
	w.logger = logger
	w.loggerMu.Unlock()
}

// Start runs the subscription loop in the background.
func (w *EventWorker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.run(ctx)
}

// Stop cancels the subscription and waits for the worker to exit.
func (w *EventWorker) Stop() {
	w.stopOnce.Do(func() {
		w.cancel()
		w.wg.Wait()
	})
}

func (w *EventWorker) run(ctx context.Context) {
	defer w.wg.Done()

	for {
		w.logInfo("subscribing to hub events")
		err := w.source.Subscribe(ctx, func(e openhab.Event) {
			w.handle(ctx, e)
		})
		if ctx.Err() != nil {
			return
		}

		if errors.Is(err, openhab.ErrStreamClosed) {
			w.logWarn("hub event stream closed", "retry_in", w.backoff)
		} else {
			w.logError("hub event stream failed", "error", err, "retry_in", w.backoff)
		}
		w.metrics.StreamReconnect()

		timer := time.NewTimer(w.backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// handle routes one event to the engine. Events for other items, read-only
// properties, or event types without a value are ignored.
func (w *EventWorker) handle(ctx context.Context, e openhab.Event) {
	device, p, err := w.engine.ParseItemName(e.ItemName(), w.devices)
	if err != nil {
		return
	}
	spec, _ := codec.Lookup(p)
	if spec.Direction != codec.ReadWrite || !e.CarriesValue() {
		return
	}

	raw, err := e.Value()
	if err != nil {
		w.logWarn("cannot read event value", "topic", e.Topic, "error", err)
		w.metrics.Event(metrics.OutcomeError)
		return
	}

	if err := w.engine.ObserveHubChange(ctx, device, p, raw); err != nil {
		w.logError("hub change not applied",
			"device", device, "property", p, "value", raw, "error", err)
		w.metrics.Event(metrics.OutcomeError)
		return
	}
	w.metrics.Event(metrics.OutcomeOK)
}

func (w *EventWorker) getLogger() Logger {
	w.loggerMu.RLock()
	defer w.loggerMu.RUnlock()
	return w.logger
}

func (w *EventWorker) logInfo(msg string, keysAndValues ...any) {
	if l := w.getLogger(); l != nil {
		l.Info(msg, keysAndValues...)
	}
}

func (w *EventWorker) logWarn(msg string, keysAndValues ...any) {
	if l := w.getLogger(); l != nil {
		l.Warn(msg, keysAndValues...)
	}
}

func (w *EventWorker) logError(msg string, keysAndValues ...any) {
	if l := w.getLogger(); l != nil {
		l.Error(msg, keysAndValues...)
	}
}
