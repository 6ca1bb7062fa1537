package metrics

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"
)

// HealthStatus is the overall or per-check state.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"  // serving, local faults above threshold
	HealthStatusUnhealthy HealthStatus = "unhealthy" // a registered check failed
)

func (s HealthStatus) httpCode() int {
	if s == HealthStatusUnhealthy {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

// DefaultMaxErrorRate is the local fault ratio above which a bus reports
// degraded.
const DefaultMaxErrorRate = 0.01

// CheckFunc returns nil when healthy.
type CheckFunc func() error

// HealthCheck evaluates named checks and the collector's local fault rate.
// Firewall rejections are hostile traffic, not faults, and never degrade
// the status; read, handler and send errors do.
type HealthCheck struct {
	mu           sync.RWMutex
	checks       map[string]CheckFunc
	collector    *Collector
	started      time.Time
	version      string
	maxErrorRate float64
}

// HealthResponse is the /health body.
type HealthResponse struct {
	Status    HealthStatus           `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Uptime    string                 `json:"uptime"`
	Version   string                 `json:"version,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Uplink    *UplinkHealth          `json:"uplink,omitempty"`
}

// CheckResult is the outcome of one named check.
type CheckResult struct {
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
	Latency string       `json:"latency"`
}

// UplinkHealth summarizes bus traffic for operators.
type UplinkHealth struct {
	DatagramsReceived uint64  `json:"datagrams_received"`
	CommandsAccepted  uint64  `json:"commands_accepted"`
	CommandsExecuted  uint64  `json:"commands_executed"`
	Malformed         uint64  `json:"malformed"`
	Unauthorized      uint64  `json:"unauthorized"`
	AuthFailed        uint64  `json:"auth_failed"`
	RateLimited       uint64  `json:"rate_limited"`
	LocalErrors       uint64  `json:"local_errors"`
	ErrorRate         float64 `json:"error_rate"`
}

// NewHealthCheck returns a HealthCheck. collector may be nil, in which case
// the response carries no uplink section and never degrades.
func NewHealthCheck(collector *Collector, version string) *HealthCheck {
	return &HealthCheck{
		checks:       make(map[string]CheckFunc),
		collector:    collector,
		started:      time.Now(),
		version:      version,
		maxErrorRate: DefaultMaxErrorRate,
	}
}

// AddCheck registers or replaces the check called name.
func (h *HealthCheck) AddCheck(name string, check CheckFunc) {
	h.mu.Lock()
	h.checks[name] = check
	h.mu.Unlock()
}

// Check runs every registered check and returns the combined response.
func (h *HealthCheck) Check() HealthResponse {
	h.mu.RLock()
	checks := make(map[string]CheckFunc, len(h.checks))
	for name, fn := range h.checks {
		checks[name] = fn
	}
	h.mu.RUnlock()

	resp := HealthResponse{
		Status:    HealthStatusHealthy,
		Timestamp: time.Now(),
		Uptime:    time.Since(h.started).Truncate(time.Second).String(),
		Version:   h.version,
		Checks:    make(map[string]CheckResult, len(checks)),
	}

	for name, fn := range checks {
		start := time.Now()
		err := fn()
		res := CheckResult{Status: HealthStatusHealthy, Latency: time.Since(start).String()}
		if err != nil {
			res.Status = HealthStatusUnhealthy
			res.Message = err.Error()
			resp.Status = HealthStatusUnhealthy
		}
		resp.Checks[name] = res
	}

	if h.collector == nil {
		return resp
	}

	up := uplinkHealth(h.collector.Snapshot())
	resp.Uplink = &up
	if resp.Status == HealthStatusHealthy && up.ErrorRate > h.maxErrorRate {
		resp.Status = HealthStatusDegraded
	}
	return resp
}

func uplinkHealth(s Snapshot) UplinkHealth {
	up := UplinkHealth{
		DatagramsReceived: s.DatagramsReceived,
		CommandsAccepted:  s.CommandsAccepted,
		CommandsExecuted:  s.CommandsExecuted,
		Malformed:         s.DecodeFailures,
		Unauthorized:      s.Unauthorized,
		AuthFailed:        s.AuthFailures,
		RateLimited:       s.RateLimited,
		LocalErrors:       s.ReadErrors + s.HandlerErrors + s.SendErrors,
	}
	if ops := s.DatagramsReceived + s.PacketsSent; ops > 0 {
		up.ErrorRate = float64(up.LocalErrors) / float64(ops)
	}
	return up
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Handler serves the full response: 200 when healthy or degraded, 503 when
// unhealthy.
func (h *HealthCheck) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		resp := h.Check()
		writeJSON(w, resp.Status.httpCode(), resp)
	})
}

// LivenessHandler always answers 200 while the process serves HTTP.
func (h *HealthCheck) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})
}

// ReadinessHandler answers 503 while any check fails.
func (h *HealthCheck) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		status := h.Check().Status
		writeJSON(w, status.httpCode(), map[string]interface{}{
			"status": status,
			"ready":  status != HealthStatusUnhealthy,
		})
	})
}

// MemoryCheck fails when the live heap exceeds limit bytes.
func MemoryCheck(limit uint64) CheckFunc {
	return func() error {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		if m.HeapAlloc > limit {
			return fmt.Errorf("heap %d bytes exceeds %d", m.HeapAlloc, limit)
		}
		return nil
	}
}

// SelfTestCheck fails unless passed reports true. Wire it to
// crypto.SelfTestPassed.
func SelfTestCheck(passed func() bool) CheckFunc {
	return func() error {
		if !passed() {
			return errors.New("cryptographic self-test failed")
		}
		return nil
	}
}

// ListeningCheck fails while addr returns "", i.e. before the bus socket is
// bound.
func ListeningCheck(addr func() string) CheckFunc {
	return func() error {
		if addr() == "" {
			return errors.New("bus not listening")
		}
		return nil
	}
}
