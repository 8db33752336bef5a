package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// HealthStatus is the JSON body served on /health and /ready: the overall
// rollup plus a breakdown of the backend's three daemons (transport,
// Coordinator, Launch Pump).
type HealthStatus struct {
	Status     string            `json:"status"` // "healthy", "degraded", "unhealthy"
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
	Message    string            `json:"message,omitempty"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime,omitempty"`
	StartTime  time.Time         `json:"-"`
}

// daemonHealth is the last status a backend daemon reported for itself.
type daemonHealth struct {
	Healthy bool
	Message string
	Updated time.Time
}

var health = &healthRegistry{daemons: make(map[string]daemonHealth), startTime: time.Now()}

// healthRegistry tracks the backend's daemons: the gRPC transport, the
// Coordinator event loop, and the Launch Pump worker. SchedulerBackend.Start
// calls UpdateComponent as each daemon comes up; nothing updates a daemon's
// entry when it stops.
type healthRegistry struct {
	mu        sync.RWMutex
	daemons   map[string]daemonHealth
	startTime time.Time
	version   string
}

// SetVersion sets the version string for health responses
func SetVersion(version string) {
	health.mu.Lock()
	defer health.mu.Unlock()
	health.version = version
}

// UpdateComponent records the current health of a named daemon. Calling it
// for a name not yet seen registers the daemon.
func UpdateComponent(name string, healthy bool, message string) {
	health.mu.Lock()
	defer health.mu.Unlock()

	health.daemons[name] = daemonHealth{
		Healthy: healthy,
		Message: message,
		Updated: time.Now(),
	}
}

// GetHealth rolls every known daemon's last-reported status into one
// HealthStatus; any unhealthy daemon sinks the whole rollup to "unhealthy".
func GetHealth() HealthStatus {
	health.mu.RLock()
	defer health.mu.RUnlock()

	status := "healthy"
	components := make(map[string]string)

	for name, d := range health.daemons {
		if !d.Healthy {
			status = "unhealthy"
			components[name] = "unhealthy: " + d.Message
		} else {
			components[name] = "healthy"
		}
	}

	return HealthStatus{
		Status:     status,
		Timestamp:  time.Now(),
		Components: components,
		Version:    health.version,
		Uptime:     time.Since(health.startTime).String(),
		StartTime:  health.startTime,
	}
}

// driverDaemons are the components SchedulerBackend.Start brings up: the
// gRPC transport, the Coordinator event loop, and the Launch Pump worker.
// /ready waits for all three before the process is considered able to
// accept executor registrations.
var driverDaemons = []string{"transport", "coordinator", "launchpump"}

// GetReadiness reports "ready" only once every driver daemon has reported
// healthy; a daemon that has never reported is treated the same as one
// reporting unhealthy.
func GetReadiness() HealthStatus {
	health.mu.RLock()
	defer health.mu.RUnlock()

	status := "ready"
	message := ""
	components := make(map[string]string)

	for _, name := range driverDaemons {
		d, known := health.daemons[name]
		switch {
		case !known:
			status = "not_ready"
			message = "waiting for " + name + " initialization"
			components[name] = "not registered"
		case !d.Healthy:
			status = "not_ready"
			message = "waiting for " + name
			components[name] = "not ready: " + d.Message
		default:
			components[name] = "ready"
		}
	}

	return HealthStatus{
		Status:     status,
		Timestamp:  time.Now(),
		Components: components,
		Message:    message,
		Version:    health.version,
		Uptime:     time.Since(health.startTime).String(),
		StartTime:  health.startTime,
	}
}

// HealthHandler serves /health with the rollup from GetHealth.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := GetHealth()

		w.Header().Set("Content-Type", "application/json")
		statusCode := http.StatusOK
		if status.Status == "unhealthy" {
			statusCode = http.StatusServiceUnavailable
		}
		w.WriteHeader(statusCode)

		_ = json.NewEncoder(w).Encode(status)
	}
}

// ReadyHandler serves /ready with the rollup from GetReadiness.
func ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		readiness := GetReadiness()

		w.Header().Set("Content-Type", "application/json")
		statusCode := http.StatusOK
		if readiness.Status != "ready" {
			statusCode = http.StatusServiceUnavailable
		}
		w.WriteHeader(statusCode)

		_ = json.NewEncoder(w).Encode(readiness)
	}
}

// LivenessHandler always reports alive once the process can serve HTTP; it
// does not depend on any daemon's registration, unlike /ready.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status": "alive",
			"uptime": time.Since(health.startTime).String(),
		})
	}
}
