package process

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Status represents the current state of a supervised run.
type Status string

const (
	StatusStopped    Status = "stopped"
	StatusRunning    Status = "running"
	StatusCoolingOff Status = "cooling_off"
	StatusFailed     Status = "failed"
)

// Supervisor defaults.
const (
	DefaultMaxAttempts = 100
	DefaultCooldown    = 10 * time.Second
)

// ErrAttemptsExhausted is returned once every allowed run has failed.
var ErrAttemptsExhausted = errors.New("process: restart attempts exhausted")

// RunFunc is one complete run of the program. It returns nil on a clean
// shutdown.
type RunFunc func(ctx context.Context) error

// Config holds configuration for a Supervisor.
type Config struct {
	// Name is a human-readable identifier for logging.
	Name string

	// MaxAttempts bounds the total number of runs. Default: 100.
	MaxAttempts int

	// Cooldown is the wait between a failed run and the next. Default: 10s.
	Cooldown time.Duration

	// OnRestart is called before each rerun with the attempt about to start.
	OnRestart func(attempt int, lastErr error)
}

// Logger defines the logging interface for the supervisor.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Supervisor reruns a RunFunc after abnormal exits, up to a bounded number
// of attempts with a fixed cooldown between them.
type Supervisor struct {
	config Config
	logger Logger
	sleep  func(ctx context.Context, d time.Duration) error

	mu        sync.RWMutex
	status    Status
	attempts  int
	lastError error
	startTime time.Time
}

// NewSupervisor creates a supervisor, applying defaults for zero values.
func NewSupervisor(cfg Config) *Supervisor {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	return &Supervisor{
		config: cfg,
		logger: noopLogger{},
		sleep:  sleepContext,
		status: StatusStopped,
	}
}

// SetLogger sets the logger for the supervisor.
func (s *Supervisor) SetLogger(logger Logger) {
	s.logger = logger
}

// Run calls fn until it returns nil, returns a permanent error, ctx ends, or
// MaxAttempts runs have failed. A panic inside fn counts as a failed run.
//
// Returns:
//   - error: nil after a clean run or cancellation, the permanent error, or
//     ErrAttemptsExhausted wrapping the last failure
func (s *Supervisor) Run(ctx context.Context, fn RunFunc) error {
	for attempt := 1; ; attempt++ {
		s.setRunning(attempt)

		err := s.runOnce(ctx, fn)
		if err == nil || ctx.Err() != nil {
			s.setStatus(StatusStopped, err)
			if err != nil {
				s.logger.Info("run ended after cancellation", "name", s.config.Name, "error", err)
			}
			return nil
		}

		if !IsRecoverable(err) {
			s.setStatus(StatusFailed, err)
			s.logger.Error("run failed permanently", "name", s.config.Name, "error", err)
			return err
		}

		if attempt >= s.config.MaxAttempts {
			s.setStatus(StatusFailed, err)
			s.logger.Error("max restart attempts reached",
				"name", s.config.Name,
				"attempts", attempt,
				"error", err,
			)
			return fmt.Errorf("%w after %d runs: %w", ErrAttemptsExhausted, attempt, err)
		}

		s.setStatus(StatusCoolingOff, err)
		s.logger.Warn("run exited abnormally, restarting",
			"name", s.config.Name,
			"attempt", attempt,
			"delay", s.config.Cooldown,
			"error", err,
		)
		if s.config.OnRestart != nil {
			s.config.OnRestart(attempt+1, err)
		}

		if err := s.sleep(ctx, s.config.Cooldown); err != nil {
			s.setStatus(StatusStopped, nil)
			return nil
		}
	}
}

func (s *Supervisor) runOnce(ctx context.Context, fn RunFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

func (s *Supervisor) setRunning(attempt int) {
	s.mu.Lock()
	s.status = StatusRunning
	s.attempts = attempt
	s.startTime = time.Now()
	s.mu.Unlock()
}

func (s *Supervisor) setStatus(status Status, err error) {
	s.mu.Lock()
	s.status = status
	if err != nil {
		s.lastError = err
	}
	s.mu.Unlock()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Status returns the current status.
func (s *Supervisor) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Stats is a point-in-time view of the supervisor, reported on
// /api/v1/system.
type Stats struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	Attempts  int           `json:"attempts"`
	Uptime    time.Duration `json:"uptime,omitempty"`
	LastError string        `json:"last_error,omitempty"`
}

// Stats returns current statistics.
func (s *Supervisor) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		Name:     s.config.Name,
		Status:   s.status,
		Attempts: s.attempts,
	}
	if s.status == StatusRunning {
		stats.Uptime = time.Since(s.startTime)
	}
	if s.lastError != nil {
		stats.LastError = s.lastError.Error()
	}
	return stats
}
