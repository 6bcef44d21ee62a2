package gateway

import (
	"math"
	"math/rand"
	"net/http"

	"github.com/ocx/qrng-diode/internal/apperr"
)

const maxMonteCarloIterations = 10_000_000

type monteCarloResponse struct {
	EstimatedPi     float64  `json:"estimated_pi"`
	Error           float64  `json:"error"`
	ErrorPercent    float64  `json:"error_percent"`
	Iterations      int      `json:"iterations"`
	ConvergenceRate string   `json:"convergence_rate"`
	QualityAssessment string `json:"quality_assessment"`
	Note            string   `json:"note"`
	QuantumVsPseudo *float64 `json:"quantum_vs_pseudo,omitempty"`
}

// handleMonteCarlo serves GET /api/test/monte-carlo?iterations=K, a
// diagnostic estimating pi from buffered entropy to gauge its quality.
func (s *Server) handleMonteCarlo(w http.ResponseWriter, r *http.Request, key string) {
	iterations, err := parseIntParam(r, "iterations", 10000)
	if err != nil {
		s.writeHandlerError(w, err)
		return
	}
	if iterations < 1 || iterations > maxMonteCarloIterations {
		s.writeHandlerError(w, apperr.New(apperr.Validation, "iterations out of range"))
		return
	}

	data, err := s.popBytes(iterations * 16)
	if err != nil {
		s.metrics.RecordRequest(true)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInsufficientStorage)
		writeJSON(w, map[string]string{"error": err.Error()})
		return
	}

	estimated := estimatePi(data, iterations)
	resp := buildMonteCarloResponse(estimated, iterations)

	if iterations <= 1_000_000 {
		pseudo := estimatePiPseudoRandom(iterations)
		diff := math.Abs(estimated - pseudo)
		resp.QuantumVsPseudo = &diff
	}

	s.metrics.RecordRequest(false)
	s.metrics.RecordBytesServed(len(data))
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, resp)
}

func estimatePi(data []byte, iterations int) float64 {
	inside := 0
	for i := 0; i < iterations; i++ {
		off := i * 16
		x := deriveFloat(deriveUint64(data[off : off+8]))
		y := deriveFloat(deriveUint64(data[off+8 : off+16]))
		if x*x+y*y <= 1 {
			inside++
		}
	}
	return 4 * float64(inside) / float64(iterations)
}

// estimatePiPseudoRandom repeats the same estimator using a software PRNG,
// giving a quality baseline to compare the QRNG-derived estimate against.
func estimatePiPseudoRandom(iterations int) float64 {
	rng := rand.New(rand.NewSource(1))
	inside := 0
	for i := 0; i < iterations; i++ {
		x := rng.Float64()
		y := rng.Float64()
		if x*x+y*y <= 1 {
			inside++
		}
	}
	return 4 * float64(inside) / float64(iterations)
}

func buildMonteCarloResponse(estimated float64, iterations int) monteCarloResponse {
	errAbs := math.Abs(estimated - math.Pi)
	errPct := 100 * errAbs / math.Pi

	var rate, quality string
	switch {
	case errPct < 0.01:
		rate, quality = "excellent", "entropy source shows excellent statistical quality"
	case errPct < 0.1:
		rate, quality = "good", "entropy source shows good statistical quality"
	case errPct < 1:
		rate, quality = "fair", "entropy source shows fair statistical quality"
	default:
		rate, quality = "poor", "entropy source shows poor statistical quality"
	}

	return monteCarloResponse{
		EstimatedPi:       estimated,
		Error:             errAbs,
		ErrorPercent:      errPct,
		Iterations:        iterations,
		ConvergenceRate:   rate,
		QualityAssessment: quality,
		Note:              "estimate derived from buffered entropy; convergence improves with iteration count",
	}
}
