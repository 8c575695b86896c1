package api

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/midea-bridge/internal/bridges/midea"
	"github.com/nerrad567/midea-bridge/internal/process"
)

// probeTimeout bounds each collaborator check in /system.
const probeTimeout = 3 * time.Second

// HealthResponse is the body of /api/v1/health.
type HealthResponse struct {
	Status  midea.HealthStatus `json:"status"`
	Reason  string             `json:"reason,omitempty"`
	Version string             `json:"version"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status, reason := s.bridge.Health()
	code := http.StatusOK
	if status != midea.HealthHealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, HealthResponse{Status: status, Reason: reason, Version: s.version})
}

// DeviceList is the body of /api/v1/devices.
type DeviceList struct {
	Devices []midea.DeviceStatus `json:"devices"`
	Count   int                  `json:"count"`
}

func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.bridge.Devices()
	writeJSON(w, http.StatusOK, DeviceList{Devices: devices, Count: len(devices)})
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	device, err := s.bridge.Device(name)
	if errors.Is(err, midea.ErrUnknownDevice) {
		writeNotFound(w, "device not found: "+name)
		return
	}
	if err != nil {
		s.logger.Error("device status failed", "device", name, "error", err)
		writeInternalError(w, "device status unavailable")
		return
	}
	writeJSON(w, http.StatusOK, device)
}

// SystemInfo is the body of /api/v1/system.
type SystemInfo struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeInfo    `json:"runtime"`
	Cloud         CloudInfo      `json:"cloud"`
	Hub           HubInfo        `json:"hub"`
	MQTT          CollabInfo     `json:"mqtt"`
	InfluxDB      CollabInfo     `json:"influxdb"`
	Supervisor    *process.Stats `json:"supervisor,omitempty"`
}

// RuntimeInfo contains Go runtime statistics.
type RuntimeInfo struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// CloudInfo reports the cloud session.
type CloudInfo struct {
	LoggedIn bool `json:"logged_in"`
}

// HubInfo reports hub reachability and items that returned 404.
type HubInfo struct {
	Reachable    bool     `json:"reachable"`
	Error        string   `json:"error,omitempty"`
	MissingItems []string `json:"missing_items"`
}

// CollabInfo reports an optional collaborator.
type CollabInfo struct {
	Enabled bool   `json:"enabled"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleSystem(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	info := SystemInfo{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeInfo{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(mem.Alloc) / 1024 / 1024,
			NumGC:         mem.NumGC,
		},
		MQTT:     probe(r.Context(), s.mqtt),
		InfluxDB: probe(r.Context(), s.influx),
	}

	if s.cloud != nil {
		info.Cloud.LoggedIn = s.cloud.LoggedIn()
	}
	if s.sup != nil {
		stats := s.sup.Stats()
		info.Supervisor = &stats
	}
	if s.hub != nil {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		err := s.hub.HealthCheck(ctx)
		cancel()
		info.Hub.Reachable = err == nil
		if err != nil {
			info.Hub.Error = err.Error()
		}
		info.Hub.MissingItems = s.hub.MissingItems()
	}
	if info.Hub.MissingItems == nil {
		info.Hub.MissingItems = []string{}
	}

	writeJSON(w, http.StatusOK, info)
}

func probe(ctx context.Context, c Checker) CollabInfo {
	if c == nil {
		return CollabInfo{}
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	if err := c.HealthCheck(ctx); err != nil {
		return CollabInfo{Enabled: true, Error: err.Error()}
	}
	return CollabInfo{Enabled: true, Healthy: true}
}
