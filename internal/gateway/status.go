package gateway

import (
	"fmt"
	"net/http"
	"time"
)

type statusResponse struct {
	Status                string   `json:"status"`
	BufferFillPercent      float64  `json:"buffer_fill_percent"`
	BufferBytesAvailable   int      `json:"buffer_bytes_available"`
	LastDataReceived       string   `json:"last_data_received"`
	DataFreshnessSeconds   float64  `json:"data_freshness_seconds"`
	UptimeSeconds          float64  `json:"uptime_seconds"`
	TotalRequestsServed    uint64   `json:"total_requests_served"`
	TotalBytesServed       uint64   `json:"total_bytes_served"`
	RequestsPerSecond      float64  `json:"requests_per_second"`
	Warnings               []string `json:"warnings"`
}

// handleStatus serves GET /api/status, classifying health from buffer
// fill and surfacing staleness and rate-limiting warnings.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, key string) {
	fill := s.buf.FillPercent()

	status := "unhealthy"
	switch {
	case fill >= 30:
		status = "healthy"
	case fill >= 10:
		status = "degraded"
	}

	var warnings []string
	if fill < 10 {
		warnings = append(warnings, "Buffer critically low")
	}
	freshness := s.buf.FreshnessSeconds()
	if freshness > 300 {
		warnings = append(warnings, fmt.Sprintf("Data is %d seconds old", int(freshness)))
	}
	if s.limiter != nil {
		warnings = append(warnings, "Rate limiting active")
	}

	lastReceived := ""
	if oldest := s.buf.OldestTimestamp(); !oldest.IsZero() {
		lastReceived = oldest.Format(time.RFC3339)
	}

	snap := s.metrics.Snapshot()

	s.metrics.RecordRequest(false)
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, statusResponse{
		Status:               status,
		BufferFillPercent:    fill,
		BufferBytesAvailable: s.buf.Len(),
		LastDataReceived:     lastReceived,
		DataFreshnessSeconds: freshness,
		UptimeSeconds:        snap.UptimeSeconds,
		TotalRequestsServed:  snap.RequestsTotal,
		TotalBytesServed:     snap.BytesServed,
		RequestsPerSecond:    snap.RequestsPerSec,
		Warnings:             warnings,
	})
}
