package openhab

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/r3labs/sse/v2"
	"gopkg.in/cenkalti/backoff.v1"
)

// Event types that carry a new item value.
const (
	EventItemStateChanged      = "ItemStateChangedEvent"
	EventItemState             = "ItemStateEvent"
	EventGroupItemStateChanged = "GroupItemStateChangedEvent"
	EventItemCommand           = "ItemCommandEvent"
)

// Event is one envelope from the hub's event stream.
type Event struct {
	Topic string `json:"topic"`
	Type  string `json:"type"`

	// Payload is itself JSON, encoded as a string.
	Payload string `json:"payload"`
}

// eventPayload is the inner payload of item events.
type eventPayload struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// ParseEvent decodes one stream frame.
func ParseEvent(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	if e.Topic == "" {
		return Event{}, fmt.Errorf("%w: no topic", ErrMalformedEvent)
	}
	return e, nil
}

// ItemName extracts the item from the topic. Group events name the group
// third from the end ("openhab/items/<group>/<member>/statechanged"); all
// others name the item second from the end ("openhab/items/<item>/state").
func (e Event) ItemName() string {
	parts := strings.Split(e.Topic, "/")
	idx := len(parts) - 2
	if e.Type == EventGroupItemStateChanged {
		idx = len(parts) - 3
	}
	if idx < 0 {
		return ""
	}
	return parts[idx]
}

// CarriesValue reports whether the event type is one that sets an item value.
func (e Event) CarriesValue() bool {
	switch e.Type {
	case EventItemStateChanged, EventItemState, EventGroupItemStateChanged, EventItemCommand:
		return true
	}
	return false
}

// Value decodes the item value from the payload.
func (e Event) Value() (string, error) {
	var p eventPayload
	if err := json.Unmarshal([]byte(e.Payload), &p); err != nil {
		return "", fmt.Errorf("%w: payload: %w", ErrMalformedEvent, err)
	}
	if len(p.Value) == 0 || string(p.Value) == "null" {
		return "", fmt.Errorf("%w: payload has no value", ErrMalformedEvent)
	}

	var s string
	if err := json.Unmarshal(p.Value, &s); err == nil {
		return s, nil
	}
	// Numbers and booleans are passed through as their JSON text.
	return string(p.Value), nil
}

// EventStream subscribes to the hub's server-sent events.
type EventStream struct {
	url  string
	http *http.Client

	logger   Logger
	loggerMu sync.RWMutex
}

// NewEventStream builds a stream for the hub at cfg.URL. cfg.RequestTimeout
// is ignored; the stream lives until its context ends.
func NewEventStream(cfg Config) (*EventStream, error) {
	base, err := parseBaseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &EventStream{
		url:  base.JoinPath("rest", "events").String(),
		http: httpClient,
	}, nil
}

// SetLogger sets the logger for the stream.
func (s *EventStream) SetLogger(logger Logger) {
	s.loggerMu.Lock()
	s.logger = logger
	s.loggerMu.Unlock()
}

// Subscribe connects once and calls handler for every decoded event until
// the stream ends or ctx is cancelled. Malformed frames are logged and
// skipped.
//
// Returns:
//   - error: ctx.Err() after cancellation, ErrStreamClosed when the hub ends
//     the stream, or the connection error
func (s *EventStream) Subscribe(ctx context.Context, handler func(Event)) error {
	client := sse.NewClient(s.url)
	client.Connection = s.http
	client.ReconnectStrategy = &backoff.StopBackOff{}

	err := client.SubscribeRawWithContext(ctx, func(msg *sse.Event) {
		if len(msg.Data) == 0 {
			return
		}
		e, err := ParseEvent(msg.Data)
		if err != nil {
			s.logWarn("skipping event frame", "error", err)
			return
		}
		handler(e)
	})

	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return ErrStreamClosed
}

func (s *EventStream) logWarn(msg string, args ...any) {
	s.loggerMu.RLock()
	logger := s.logger
	s.loggerMu.RUnlock()

	if logger != nil {
		logger.Warn(msg, args...)
	}
}
