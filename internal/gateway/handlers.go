package gateway

import (
	"net/http"

	"github.com/ocx/qrng-diode/internal/apperr"
)

const (
	maxRandomBytes  = 65536
	maxIntegerCount = 1000
	maxFloatCount   = 1000
	maxUUIDCount    = 100
)

func (s *Server) writeHandlerError(w http.ResponseWriter, err error) {
	s.metrics.RecordRequest(true)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apperrStatus(err))
	writeJSON(w, map[string]string{"error": err.Error()})
}

// writeInsufficientEntropy serves the 503 shape spec.md §6 requires when a
// derivation endpoint can't satisfy its buffer demand.
func (s *Server) writeInsufficientEntropy(w http.ResponseWriter, err error) {
	s.metrics.RecordRequest(true)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusServiceUnavailable)
	writeJSON(w, map[string]string{"error": err.Error()})
}

// handleRandom serves GET /api/random?bytes=N&encoding=binary|hex|base64.
func (s *Server) handleRandom(w http.ResponseWriter, r *http.Request, key string) {
	n, err := parseIntParam(r, "bytes", 32)
	if err != nil {
		s.writeHandlerError(w, err)
		return
	}
	if n < 1 || n > maxRandomBytes {
		s.writeHandlerError(w, apperr.New(apperr.Validation, "bytes out of range"))
		return
	}
	encoding := r.URL.Query().Get("encoding")
	switch encoding {
	case "", "binary", "hex", "base64":
	default:
		s.writeHandlerError(w, apperr.New(apperr.Validation, "unknown encoding"))
		return
	}

	data, err := s.popBytes(n)
	if err != nil {
		s.writeInsufficientEntropy(w, err)
		return
	}

	body, err := encodeBytes(data, encoding)
	if err != nil {
		s.writeHandlerError(w, err)
		return
	}

	s.metrics.RecordRequest(false)
	s.metrics.RecordBytesServed(len(data))
	w.Write([]byte(body))
}

// handleIntegers serves GET /api/integers?count=N&min=A&max=B.
func (s *Server) handleIntegers(w http.ResponseWriter, r *http.Request, key string) {
	count, err := parseIntParam(r, "count", 1)
	if err != nil {
		s.writeHandlerError(w, err)
		return
	}
	min, err := parseIntParam(r, "min", 0)
	if err != nil {
		s.writeHandlerError(w, err)
		return
	}
	max, err := parseIntParam(r, "max", 100)
	if err != nil {
		s.writeHandlerError(w, err)
		return
	}
	if count < 1 || count > maxIntegerCount {
		s.writeHandlerError(w, apperr.New(apperr.Validation, "count out of range"))
		return
	}
	if min >= max {
		s.writeHandlerError(w, apperr.New(apperr.Validation, "min must be < max"))
		return
	}

	data, err := s.popBytes(count * 8)
	if err != nil {
		s.writeInsufficientEntropy(w, err)
		return
	}

	out := make([]int64, count)
	for i := 0; i < count; i++ {
		word := deriveUint64(data[i*8 : i*8+8])
		out[i] = deriveInteger(word, int64(min), int64(max))
	}

	s.metrics.RecordRequest(false)
	s.metrics.RecordBytesServed(len(data))
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, out)
}

// handleFloats serves GET /api/floats?count=N.
func (s *Server) handleFloats(w http.ResponseWriter, r *http.Request, key string) {
	count, err := parseIntParam(r, "count", 1)
	if err != nil {
		s.writeHandlerError(w, err)
		return
	}
	if count < 1 || count > maxFloatCount {
		s.writeHandlerError(w, apperr.New(apperr.Validation, "count out of range"))
		return
	}

	data, err := s.popBytes(count * 8)
	if err != nil {
		s.writeInsufficientEntropy(w, err)
		return
	}

	out := make([]float64, count)
	for i := 0; i < count; i++ {
		word := deriveUint64(data[i*8 : i*8+8])
		out[i] = deriveFloat(word)
	}

	s.metrics.RecordRequest(false)
	s.metrics.RecordBytesServed(len(data))
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, out)
}

// handleUUID serves GET /api/uuid?count=N.
func (s *Server) handleUUID(w http.ResponseWriter, r *http.Request, key string) {
	count, err := parseIntParam(r, "count", 1)
	if err != nil {
		s.writeHandlerError(w, err)
		return
	}
	if count < 1 || count > maxUUIDCount {
		s.writeHandlerError(w, apperr.New(apperr.Validation, "count out of range"))
		return
	}

	data, err := s.popBytes(count * 16)
	if err != nil {
		s.writeInsufficientEntropy(w, err)
		return
	}

	out := make([]string, count)
	for i := 0; i < count; i++ {
		out[i] = deriveUUIDv4(data[i*16 : i*16+16])
	}

	s.metrics.RecordRequest(false)
	s.metrics.RecordBytesServed(len(data))
	w.Header().Set("Content-Type", "application/json")
	if count == 1 {
		writeJSON(w, out[0])
		return
	}
	writeJSON(w, out)
}

// handleHealth serves GET /health. No auth; simple liveness gate on fill.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.buf.FillPercent() > 5 {
		w.WriteHeader(http.StatusOK)
		writeJSON(w, map[string]string{"status": "ok"})
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	writeJSON(w, map[string]string{"status": "insufficient entropy"})
}
