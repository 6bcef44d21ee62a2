// Package fetcher implements one HTTPS GET fetcher per QRNG source,
// built on a pooled *http.Client with bounded idle connections and a
// 30s timeout.
package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ocx/qrng-diode/internal/apperr"
)

// Fetcher pulls chunk_size bytes from one QRNG appliance URL.
type Fetcher struct {
	baseURL    string
	chunkSize  int
	httpClient *http.Client
}

// New constructs a Fetcher against baseURL, requesting chunkSize bytes
// per call, with connection pooling and a 30s timeout.
func New(baseURL string, chunkSize int) *Fetcher {
	return &Fetcher{
		baseURL:   baseURL,
		chunkSize: chunkSize,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

var htmlPrefixes = []string{"<!doctype html>", "<!DOCTYPE html>", "<html>"}

// Fetch issues one GET request and returns chunk_size validated bytes.
func (f *Fetcher) Fetch(ctx context.Context) ([]byte, error) {
	url := fmt.Sprintf("%s?bytes=%d", f.baseURL, f.chunkSize)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "build fetch request", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperr.Wrap(apperr.Timeout, "fetch request timed out", err)
		}
		return nil, apperr.Wrap(apperr.Network, "fetch request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, apperr.New(apperr.RateLimit, "")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperr.Wrap(apperr.Network, fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.Network, "read fetch response", err)
	}

	data := decodeBody(body)

	if err := validate(data, f.chunkSize); err != nil {
		return nil, err
	}
	return data, nil
}

// decodeBody attempts to parse the body as a JSON array of bytes
// (Quantis v2.0); on failure it is treated as raw binary.
func decodeBody(body []byte) []byte {
	var ints []int
	if err := json.Unmarshal(body, &ints); err == nil {
		out := make([]byte, len(ints))
		for i, v := range ints {
			out[i] = byte(v)
		}
		return out
	}
	return body
}

func validate(data []byte, chunkSize int) error {
	if len(data) != chunkSize {
		return apperr.New(apperr.Validation, fmt.Sprintf("expected %d bytes, got %d", chunkSize, len(data)))
	}
	if len(data) == 0 {
		return apperr.New(apperr.Validation, "empty response body")
	}

	lower := strings.ToLower(string(data[:min(len(data), 32)]))
	for _, prefix := range htmlPrefixes {
		if strings.HasPrefix(lower, strings.ToLower(prefix)) {
			return apperr.New(apperr.Validation, "response body looks like an HTML error page")
		}
	}

	if allSameByte(data) {
		return apperr.New(apperr.Validation, "response body is a constant byte stream")
	}

	if dominantByteFraction(data) > 0.90 {
		return apperr.New(apperr.Validation, "response body fails coarse low-entropy guard")
	}

	return nil
}

func allSameByte(data []byte) bool {
	for _, b := range data[1:] {
		if b != data[0] {
			return false
		}
	}
	return true
}

func dominantByteFraction(data []byte) float64 {
	var counts [256]int
	for _, b := range data {
		counts[b]++
	}
	peak := 0
	for _, c := range counts {
		if c > peak {
			peak = c
		}
	}
	return float64(peak) / float64(len(data))
}
