// Package gateway implements the untrusted-side HTTP API: push-ingest,
// authenticated random-derivation endpoints, and health/metrics
// diagnostics, built on gorilla/mux.
package gateway

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ocx/qrng-diode/internal/apperr"
	"github.com/ocx/qrng-diode/internal/buffer"
	"github.com/ocx/qrng-diode/internal/config"
	"github.com/ocx/qrng-diode/internal/metrics"
	"github.com/ocx/qrng-diode/internal/protocol"
	"github.com/ocx/qrng-diode/internal/ratelimit"
)

// keyLimiter is the per-API-key admission check, satisfied by both the
// in-memory Limiter and the Redis-backed distributed variant.
type keyLimiter interface {
	Allow(key string) bool
}

// redisLimiterAdapter satisfies keyLimiter with a background context,
// since the HTTP pre-handler chain doesn't thread one through here.
type redisLimiterAdapter struct {
	rl *ratelimit.RedisLimiter
}

func (a *redisLimiterAdapter) Allow(key string) bool {
	ok, err := a.rl.Allow(context.Background(), key)
	if err != nil {
		slog.Warn("redis rate limiter unavailable, admitting request", "error", err)
		return true
	}
	return ok
}

// Server is the Gateway's HTTP API.
type Server struct {
	cfg       *config.GatewayConfig
	buf       *buffer.Buffer
	signer    *protocol.Signer
	limiter   keyLimiter
	metrics   *metrics.Metrics
	apiKeys   map[string]bool
	startedAt time.Time
	logger    *log.Logger
}

// New wires a Gateway Server from validated configuration. When
// cfg.RedisAddr is set, the rate limiter is backed by Redis so multiple
// Gateway replicas share one admission view per API key; otherwise it
// falls back to the in-memory limiter.
func New(cfg *config.GatewayConfig, m *metrics.Metrics) (*Server, error) {
	var signer *protocol.Signer
	if key, err := cfg.HMACSecretKey(); err == nil && len(key) > 0 {
		signer, err = protocol.NewSigner(key)
		if err != nil {
			return nil, err
		}
	}

	keys := make(map[string]bool, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		keys[k] = true
	}

	var limiter keyLimiter
	if cfg.RedisAddr != "" {
		rl, err := ratelimit.NewRedisLimiter(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RateLimitPerSec)
		if err != nil {
			return nil, err
		}
		limiter = &redisLimiterAdapter{rl: rl}
	} else {
		limiter = ratelimit.NewLimiter(cfg.RateLimitPerSec)
	}

	return &Server{
		cfg:       cfg,
		buf:       buffer.New(cfg.BufferSize, buffer.WithTTL(cfg.BufferTTL()), buffer.WithOverflowPolicy(buffer.Discard)),
		signer:    signer,
		limiter:   limiter,
		metrics:   m,
		apiKeys:   keys,
		startedAt: time.Now(),
		logger:    log.New(log.Writer(), "[GATEWAY] ", log.LstdFlags),
	}, nil
}

// Router builds the full mux.Router for the Gateway's HTTP surface.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/random", s.withAuth(s.handleRandom)).Methods(http.MethodGet)
	r.HandleFunc("/api/integers", s.withAuth(s.handleIntegers)).Methods(http.MethodGet)
	r.HandleFunc("/api/floats", s.withAuth(s.handleFloats)).Methods(http.MethodGet)
	r.HandleFunc("/api/uuid", s.withAuth(s.handleUUID)).Methods(http.MethodGet)
	r.HandleFunc("/api/status", s.withAuth(s.handleStatus)).Methods(http.MethodGet)
	r.HandleFunc("/api/test/monte-carlo", s.withAuth(s.handleMonteCarlo)).Methods(http.MethodGet)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}
	r.HandleFunc("/push", s.handlePush).Methods(http.MethodPost)

	return r
}

// Start constructs the router and serves it on cfg.ListenAddress.
func (s *Server) Start() error {
	s.logger.Printf("listening on %s", s.cfg.ListenAddress)
	return http.ListenAndServe(s.cfg.ListenAddress, s.Router())
}

// extractAPIKey reads the key from Authorization: Bearer or api_key query
// parameter.
func extractAPIKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); len(auth) > 7 && auth[:7] == "Bearer " {
		return auth[7:]
	}
	return r.URL.Query().Get("api_key")
}

func maskKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

// statusRecorder wraps http.ResponseWriter to capture the status code a
// handler actually wrote, so the post-handler log line reflects reality
// instead of assuming success.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

// withAuth wraps a handler with the shared pre-handler logic
// shared across authenticated endpoints: API key extraction/validation and a rate-limit check.
// Per-endpoint parameter validation and buffer admission remain in each
// handler.
func (s *Server) withAuth(next func(w http.ResponseWriter, r *http.Request, key string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		key := extractAPIKey(r)
		if key == "" || !s.apiKeys[key] {
			s.writeError(w, r, http.StatusUnauthorized, "unknown or missing api key", key, start)
			return
		}
		if !s.limiter.Allow(key) {
			w.Header().Set("Retry-After", "1")
			s.writeError(w, r, http.StatusTooManyRequests, "rate limit exceeded", key, start)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r, key)
		s.logRequest(r, key, rec.status, start)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, msg string, key string, start time.Time) {
	s.metrics.RecordRequest(true)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	writeJSON(w, map[string]string{"error": msg})
	s.logRequest(r, key, status, start)
}

func (s *Server) logRequest(r *http.Request, key string, status int, start time.Time) {
	s.metrics.RecordLatency(float64(time.Since(start).Microseconds()))
	s.logger.Printf("ip=%s ua=%q endpoint=%s key=%s params=%q status=%d",
		r.RemoteAddr, r.UserAgent(), r.URL.Path, maskKey(key), r.URL.RawQuery, status)
}

func apperrStatus(err error) int {
	var ae *apperr.Error
	if e, ok := err.(*apperr.Error); ok {
		ae = e
	}
	if ae == nil {
		return http.StatusInternalServerError
	}
	switch ae.Kind {
	case apperr.Validation:
		return http.StatusBadRequest
	case apperr.Authentication:
		return http.StatusUnauthorized
	case apperr.RateLimit:
		return http.StatusTooManyRequests
	case apperr.Buffer:
		return http.StatusInsufficientStorage
	case apperr.NotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
