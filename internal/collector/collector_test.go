package collector

import (
	"context"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/qrng-diode/internal/config"
	"github.com/ocx/qrng-diode/internal/metrics"
	"github.com/ocx/qrng-diode/internal/protocol"
)

func testConfig(t *testing.T, pushURL string) *config.CollectorConfig {
	t.Helper()
	return &config.CollectorConfig{
		ApplianceURLs:    []string{"https://example.invalid/qrng"},
		MixingStrategy:   "none",
		FetchChunkSize:   16,
		FetchIntervalMs:  100,
		BufferSize:       256,
		PushURL:          pushURL,
		PushIntervalMs:   500,
		HMACSecretKeyHex: hex.EncodeToString([]byte("0123456789abcdef")),
		MaxRetries:       5,
		InitialBackoffMs: 100,
		MaxBackoff:       5 * time.Minute,
		PushTimeout:      5 * time.Second,
		FetchTimeout:     5 * time.Second,
	}
}

func TestPushTick_SuccessClearsBackoffAndEmptiesBuffer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	c, err := New(cfg, metrics.New())
	require.NoError(t, err)

	c.buf.Push([]byte{1, 2, 3, 4})
	c.pushTick(context.Background())

	assert.Equal(t, 0, c.buf.Len())
	snap := c.metrics.Snapshot()
	assert.Equal(t, uint64(1), snap.PushesTotal)
}

func TestPushTick_GatewayFullRequeuesAndBacksOff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(507)
	}))
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	c, err := New(cfg, metrics.New())
	require.NoError(t, err)

	c.buf.Push([]byte{1, 2, 3, 4})
	c.pushTick(context.Background())

	assert.Equal(t, 4, c.buf.Len(), "bytes should be requeued on 507")
	assert.True(t, c.inBackoff(time.Now()))
}

func TestPushTick_SkipsWhenBufferBelowOnePercent(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	cfg.BufferSize = 1 << 20
	c, err := New(cfg, metrics.New())
	require.NoError(t, err)

	c.buf.Push([]byte{1})
	c.pushTick(context.Background())

	assert.False(t, called)
}

func TestSend_IncrementsSequenceEachCall(t *testing.T) {
	var gotSeqs []uint64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf, _ := io.ReadAll(r.Body)
		p, err := protocol.Unmarshal(buf)
		if err == nil {
			gotSeqs = append(gotSeqs, p.Sequence)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	c, err := New(cfg, metrics.New())
	require.NoError(t, err)

	require.NoError(t, c.send(context.Background(), []byte{1, 2, 3}))
	require.NoError(t, c.send(context.Background(), []byte{4, 5, 6}))

	require.Len(t, gotSeqs, 2)
	assert.Less(t, gotSeqs[0], gotSeqs[1])
}
