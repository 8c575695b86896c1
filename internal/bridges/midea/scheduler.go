package midea

import (
	"context"
	"sync"
	"time"
)

// Scheduler defaults.
const (
	DefaultPollInterval = 60 * time.Second
	DefaultTick         = time.Second
)

// Poller refreshes one device and syncs it to the hub. *Engine implements it.
type Poller interface {
	PollDevice(ctx context.Context, device string) (Result, error)
	LastRefresh(device string) time.Time
}

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	// Devices are polled in this order on every tick.
	Devices []string

	// PollInterval is the maximum age of a device's values. Default: 60s.
	PollInterval time.Duration

	// Tick is how often ages are checked. Default: 1s.
	Tick time.Duration
}

// Scheduler polls devices whose values are older than the poll interval.
// A push from the hub counts as a refresh and postpones the next poll.
type Scheduler struct {
	poller   Poller
	devices  []string
	interval time.Duration
	tick     time.Duration
	now      func() time.Time

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewScheduler creates a scheduler. Call Start to begin polling.
func NewScheduler(poller Poller, cfg SchedulerConfig) *Scheduler {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	tick := cfg.Tick
	if tick <= 0 {
		tick = DefaultTick
	}
	return &Scheduler{
		poller:   poller,
		devices:  append([]string(nil), cfg.Devices...),
		interval: interval,
		tick:     tick,
		now:      time.Now,
		done:     make(chan struct{}),
	}
}

// SetLogger sets the logger for the scheduler.
func (s *Scheduler) SetLogger(logger Logger) {
	s.loggerMu.Lock()
	s.logger = logger
	s.loggerMu.Unlock()
}

// Start polls every device once, then keeps polling in the background until
// ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.pollAll(ctx, true)

	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop ends the polling loop and waits for it. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.pollAll(ctx, false)
		}
	}
}

// pollAll polls stale devices, or all of them when force is set.
func (s *Scheduler) pollAll(ctx context.Context, force bool) {
	for _, name := range s.devices {
		if ctx.Err() != nil {
			return
		}
		if !force && s.now().Sub(s.poller.LastRefresh(name)) <= s.interval {
			continue
		}
		res, err := s.poller.PollDevice(ctx, name)
		if err != nil {
			s.logWarn("poll failed, retrying next tick", "device", name, "error", err)
			continue
		}
		if len(res.Pushed) > 0 || len(res.Failed) > 0 {
			s.logInfo("device synced",
				"pass", res.PassID,
				"device", name,
				"pushed", len(res.Pushed),
				"failed", len(res.Failed))
		}
	}
}

func (s *Scheduler) getLogger() Logger {
	s.loggerMu.RLock()
	defer s.loggerMu.RUnlock()
	return s.logger
}

func (s *Scheduler) logInfo(msg string, keysAndValues ...any) {
	if l := s.getLogger(); l != nil {
		l.Info(msg, keysAndValues...)
	}
}

func (s *Scheduler) logWarn(msg string, keysAndValues ...any) {
	if l := s.getLogger(); l != nil {
		l.Warn(msg, keysAndValues...)
	}
}
