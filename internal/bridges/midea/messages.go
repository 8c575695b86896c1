package midea

import (
	"time"

	"github.com/nerrad567/midea-bridge/internal/codec"
)

// DefaultTopicPrefix is the base topic for everything the bridge publishes.
const DefaultTopicPrefix = "midea"

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	// HealthHealthy indicates the bridge is operating normally.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates the bridge is running with issues.
	HealthDegraded HealthStatus = "degraded"

	// HealthOffline is published by the broker as the last will.
	HealthOffline HealthStatus = "offline"

	// HealthStarting indicates the bridge is starting up.
	HealthStarting HealthStatus = "starting"

	// HealthStopping indicates the bridge is shutting down.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage is the retained bridge status.
type HealthMessage struct {
	Bridge         string       `json:"bridge"`
	Timestamp      time.Time    `json:"timestamp"`
	Status         HealthStatus `json:"status"`
	Version        string       `json:"version,omitempty"`
	UptimeSeconds  int64        `json:"uptime_seconds"`
	CloudLoggedIn  bool         `json:"cloud_logged_in"`
	DevicesManaged int          `json:"devices_managed"`

	// Reason explains a degraded or offline status.
	Reason string `json:"reason,omitempty"`
}

// NewHealthMessage creates a health status message.
func NewHealthMessage(bridgeID, version string, status HealthStatus, loggedIn bool, devices int, startTime time.Time) HealthMessage {
	return HealthMessage{
		Bridge:         bridgeID,
		Timestamp:      time.Now().UTC(),
		Status:         status,
		Version:        version,
		UptimeSeconds:  int64(time.Since(startTime).Seconds()),
		CloudLoggedIn:  loggedIn,
		DevicesManaged: devices,
	}
}

// NewLWTMessage creates the Last Will and Testament message.
func NewLWTMessage(bridgeID string) HealthMessage {
	return HealthMessage{
		Bridge:    bridgeID,
		Timestamp: time.Now().UTC(),
		Status:    HealthOffline,
		Reason:    "unexpected_disconnect",
	}
}

// HealthTopic returns the topic for bridge health.
// Example: midea/health
func HealthTopic(prefix string) string {
	return prefix + "/health"
}

// StateTopic returns the topic mirroring one device property.
// Example: midea/state/lounge/target_temperature
func StateTopic(prefix, device string, p codec.Property) string {
	return prefix + "/state/" + device + "/" + string(p)
}
