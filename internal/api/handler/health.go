package handler

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/iconidentify/tokrelay/internal/relay"
)

var startTime = time.Now()

// ServiceName is reported by the root endpoint.
const ServiceName = "TikTok Downloader API"

// RelayStatser exposes relay stream counters.
type RelayStatser interface {
	Stats() relay.Stats
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	relay RelayStatser
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(relay RelayStatser) *HealthHandler {
	return &HealthHandler{
		relay: relay,
	}
}

// HealthResponse is the JSON response for health checks.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service,omitempty"`
}

// Root handles GET /
func (h *HealthHandler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Service: ServiceName,
	})
}

// Live handles GET /health - liveness probe.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// SystemStats contains process and relay statistics.
type SystemStats struct {
	Uptime        int64       `json:"uptime_seconds"`
	UptimeHuman   string      `json:"uptime_human"`
	MemAllocMB    int64       `json:"mem_alloc_mb"`
	MemSysMB      int64       `json:"mem_sys_mb"`
	MemHeapMB     int64       `json:"mem_heap_mb"`
	NumGoroutines int         `json:"num_goroutines"`
	NumCPU        int         `json:"num_cpu"`
	Streams       relay.Stats `json:"streams"`
}

// Stats handles GET /stats - process and stream statistics.
// An Active count that stays above zero with no traffic points at a leaked upstream.
func (h *HealthHandler) Stats(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(startTime)

	stats := SystemStats{
		Uptime:        int64(uptime.Seconds()),
		UptimeHuman:   formatUptime(uptime),
		MemAllocMB:    int64(m.Alloc / 1024 / 1024),
		MemSysMB:      int64(m.Sys / 1024 / 1024),
		MemHeapMB:     int64(m.HeapAlloc / 1024 / 1024),
		NumGoroutines: runtime.NumGoroutine(),
		NumCPU:        runtime.NumCPU(),
	}
	if h.relay != nil {
		stats.Streams = h.relay.Stats()
	}

	writeJSON(w, http.StatusOK, stats)
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}
