package gateway

import (
	"io"
	"net/http"
	"time"

	"github.com/ocx/qrng-diode/internal/protocol"
)

// handlePush serves POST /push, the Collector's only entry point into
// the Gateway: parse, verify signature, verify checksum, check staleness, admit.
func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.pushError(w, r, http.StatusBadRequest, "failed to read body", start)
		return
	}

	p, err := protocol.Unmarshal(body)
	if err != nil {
		s.pushError(w, r, http.StatusBadRequest, "malformed packet", start)
		return
	}

	if s.signer == nil {
		s.pushError(w, r, http.StatusInternalServerError, "signer misconfigured", start)
		return
	}
	ok, err := s.signer.VerifyPacket(p)
	if err != nil {
		s.pushError(w, r, http.StatusInternalServerError, "signer misconfigured", start)
		return
	}
	if !ok {
		s.pushError(w, r, http.StatusUnauthorized, "signature verification failed", start)
		return
	}

	if !protocol.VerifyChecksum(p.Data, p.Checksum) {
		s.pushError(w, r, http.StatusBadRequest, "checksum mismatch", start)
		return
	}

	if s.cfg.BufferTTL() > 0 && protocol.IsStale(p, s.cfg.BufferTTL(), time.Now()) {
		s.pushError(w, r, http.StatusBadRequest, "packet too stale", start)
		return
	}

	accepted := s.buf.Push(p.Data)
	if accepted == 0 {
		s.pushError(w, r, http.StatusInsufficientStorage, "gateway buffer full", start)
		return
	}

	s.metrics.RecordRequest(false)
	w.WriteHeader(http.StatusOK)
	writeJSON(w, map[string]int{"stored_bytes": accepted})
	s.logPush(r, http.StatusOK, start)
}

func (s *Server) pushError(w http.ResponseWriter, r *http.Request, status int, msg string, start time.Time) {
	s.metrics.RecordRequest(true)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	writeJSON(w, map[string]string{"error": msg})
	s.logPush(r, status, start)
}

func (s *Server) logPush(r *http.Request, status int, start time.Time) {
	s.metrics.RecordLatency(float64(time.Since(start).Microseconds()))
	s.logger.Printf("ip=%s ua=%q endpoint=/push status=%d", r.RemoteAddr, r.UserAgent(), status)
}
