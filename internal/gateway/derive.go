package gateway

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ocx/qrng-diode/internal/apperr"
)

// popBytes pops n bytes from the shared buffer, mapping an empty buffer
// to a Validation-503-insufficient-entropy error.
func (s *Server) popBytes(n int) ([]byte, error) {
	data, ok := s.buf.Pop(n)
	if !ok {
		return nil, apperr.New(apperr.Validation, "insufficient entropy buffered")
	}
	return data, nil
}

func parseIntParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperr.New(apperr.Validation, fmt.Sprintf("%s must be an integer", name))
	}
	return n, nil
}

// deriveUint64 interprets 8 little-endian bytes as an unsigned 64-bit word.
func deriveUint64(b []byte) uint64 {
	return binary.LittleEndian.Uint64(b)
}

// deriveInteger maps a random 64-bit word onto [min, max] inclusive.
func deriveInteger(word uint64, min, max int64) int64 {
	span := uint64(max - min + 1)
	return min + int64(word%span)
}

// deriveFloat takes the top 53 bits of word and scales to [0, 1), avoiding
// the rounding bias of a direct uint64->float64 conversion.
func deriveFloat(word uint64) float64 {
	return float64(word>>11) / float64(uint64(1)<<53)
}

// deriveUUIDv4 stamps the version/variant nibbles onto 16 raw bytes and
// formats per RFC 4122.
func deriveUUIDv4(b []byte) string {
	u := make([]byte, 16)
	copy(u, b)
	u[6] = (u[6] & 0x0f) | 0x40
	u[8] = (u[8] & 0x3f) | 0x80
	return fmt.Sprintf("%x-%x-%x-%x-%x", u[0:4], u[4:6], u[6:8], u[8:10], u[10:16])
}

func encodeBytes(data []byte, encoding string) (string, error) {
	switch encoding {
	case "", "binary":
		return string(data), nil
	case "hex":
		return hex.EncodeToString(data), nil
	case "base64":
		return base64.StdEncoding.EncodeToString(data), nil
	default:
		return "", apperr.New(apperr.Validation, fmt.Sprintf("unknown encoding %q", encoding))
	}
}
