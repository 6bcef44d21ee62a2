package config

import (
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validCollectorConfig() *CollectorConfig {
	return &CollectorConfig{
		ApplianceURLs:    []string{"https://qrng.example/a"},
		MixingStrategy:   "none",
		FetchChunkSize:   4096,
		BufferSize:       1 << 20,
		PushURL:          "https://gateway.example/push",
		HMACSecretKeyHex: hex.EncodeToString([]byte("0123456789abcdef")),
		MaxBackoff:       5 * time.Minute,
	}
}

func TestCollectorValidate_AcceptsWellFormedConfig(t *testing.T) {
	assert.NoError(t, validCollectorConfig().Validate())
}

func TestCollectorValidate_RequiresAtLeastOneSource(t *testing.T) {
	cfg := validCollectorConfig()
	cfg.ApplianceURLs = nil
	assert.Error(t, cfg.Validate())
}

func TestCollectorValidate_RejectsUnparseableURL(t *testing.T) {
	cfg := validCollectorConfig()
	cfg.ApplianceURLs = []string{"not-a-url"}
	assert.Error(t, cfg.Validate())
}

func TestCollectorValidate_MultiSourceRequiresMixing(t *testing.T) {
	cfg := validCollectorConfig()
	cfg.ApplianceURLs = []string{"https://qrng.example/a", "https://qrng.example/b"}
	cfg.MixingStrategy = "none"
	assert.Error(t, cfg.Validate())

	cfg.MixingStrategy = "xor"
	assert.NoError(t, cfg.Validate())
}

func TestCollectorValidate_ChunkSizeBounds(t *testing.T) {
	cfg := validCollectorConfig()
	cfg.FetchChunkSize = 0
	assert.Error(t, cfg.Validate())

	cfg.FetchChunkSize = maxRequestSize + 1
	assert.Error(t, cfg.Validate())
}

func TestCollectorValidate_BufferMustCoverChunkSize(t *testing.T) {
	cfg := validCollectorConfig()
	cfg.BufferSize = cfg.FetchChunkSize - 1
	assert.Error(t, cfg.Validate())
}

func TestCollectorValidate_HMACKeyMustBeHexNonEmptyNonZero(t *testing.T) {
	cfg := validCollectorConfig()
	cfg.HMACSecretKeyHex = "not-hex"
	assert.Error(t, cfg.Validate())

	cfg.HMACSecretKeyHex = ""
	assert.Error(t, cfg.Validate())

	cfg.HMACSecretKeyHex = hex.EncodeToString([]byte{0, 0, 0, 0})
	assert.Error(t, cfg.Validate())
}

func validGatewayConfig() *GatewayConfig {
	return &GatewayConfig{
		BufferSize:       1 << 20,
		APIKeys:          []string{"key1"},
		RateLimitPerSec:  10,
		HMACSecretKeyHex: hex.EncodeToString([]byte("0123456789abcdef")),
	}
}

func TestGatewayValidate_AcceptsWellFormedConfig(t *testing.T) {
	assert.NoError(t, validGatewayConfig().Validate())
}

func TestGatewayValidate_RequiresBufferSize(t *testing.T) {
	cfg := validGatewayConfig()
	cfg.BufferSize = 0
	assert.Error(t, cfg.Validate())
}

func TestGatewayValidate_RequiresAtLeastOneAPIKey(t *testing.T) {
	cfg := validGatewayConfig()
	cfg.APIKeys = nil
	assert.Error(t, cfg.Validate())
}

func TestGatewayValidate_RequiresPositiveRateLimit(t *testing.T) {
	cfg := validGatewayConfig()
	cfg.RateLimitPerSec = 0
	assert.Error(t, cfg.Validate())
}

func TestGatewayValidate_RejectsAllZeroKey(t *testing.T) {
	cfg := validGatewayConfig()
	cfg.HMACSecretKeyHex = hex.EncodeToString([]byte{0, 0, 0, 0, 0, 0, 0, 0})
	assert.Error(t, cfg.Validate())
}

func TestSplitCSV_TrimsAndDropsEmpties(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, splitCSV(" a, b ,,c"))
}
