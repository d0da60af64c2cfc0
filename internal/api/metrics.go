package api

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/gray-logic-settings/internal/settings"
)

// SystemMetrics is the body of GET /api/v1/metrics.
type SystemMetrics struct {
	Timestamp     string          `json:"timestamp"`
	Version       string          `json:"version"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Runtime       RuntimeMetrics  `json:"runtime"`
	WebSocket     WSMetrics       `json:"websocket"`
	Settings      SettingsMetrics `json:"settings"`
}

// RuntimeMetrics is a snapshot of the Go runtime.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

type WSMetrics struct {
	ConnectedClients int    `json:"connected_clients"`
	DroppedEvents    uint64 `json:"dropped_events"`
}

// SettingsMetrics counts settings by state.
type SettingsMetrics struct {
	Total       int `json:"total"`
	Set         int `json:"set"`
	WithDefault int `json:"with_default"`
	Changed     int `json:"changed"`
}

const bytesPerMB = 1 << 20

func readRuntimeMetrics() RuntimeMetrics {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return RuntimeMetrics{
		Goroutines:    runtime.NumGoroutine(),
		MemoryAllocMB: float64(ms.Alloc) / bytesPerMB,
		MemoryTotalMB: float64(ms.TotalAlloc) / bytesPerMB,
		NumGC:         ms.NumGC,
	}
}

func (m *SettingsMetrics) add(st *settings.Setting) {
	m.Total++
	if st.IsSet() {
		m.Set++
	}
	if st.HasDefault() {
		m.WithDefault++
	}
	if st.ChangedRecently() {
		m.Changed++
	}
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var counts SettingsMetrics
	err := s.queue.Do(r.Context(), func(context.Context) error {
		for st := range s.registry.All() {
			counts.add(st)
		}
		return nil
	})
	if err != nil {
		s.writeSettingsError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime:       readRuntimeMetrics(),
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
			DroppedEvents:    s.hub.Dropped(),
		},
		Settings: counts,
	})
}
