// Package mixer combines N equal-length entropy chunks into one output of
// the same length, using XOR or HKDF.
package mixer

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/ocx/qrng-diode/internal/apperr"
)

// Strategy selects how chunks are combined.
type Strategy string

const (
	None Strategy = "none"
	Xor  Strategy = "xor"
	Hkdf Strategy = "hkdf"
)

// Mix combines chunks according to strategy. All chunks must share the
// same length; a single chunk is returned unchanged regardless of
// strategy.
func Mix(strategy Strategy, chunks [][]byte) ([]byte, error) {
	if len(chunks) == 0 {
		return nil, apperr.New(apperr.Validation, "mix requires at least one chunk")
	}
	length := len(chunks[0])
	for _, c := range chunks {
		if len(c) != length {
			return nil, apperr.New(apperr.Validation, "mix inputs must be equal length")
		}
	}
	if len(chunks) == 1 {
		out := make([]byte, length)
		copy(out, chunks[0])
		return out, nil
	}

	switch strategy {
	case None:
		out := make([]byte, length)
		copy(out, chunks[0])
		return out, nil
	case Xor:
		return xorChunks(chunks), nil
	case Hkdf:
		return hkdfMix(chunks)
	default:
		return nil, apperr.New(apperr.Validation, fmt.Sprintf("unknown mixing strategy %q", strategy))
	}
}

func xorChunks(chunks [][]byte) []byte {
	length := len(chunks[0])
	out := make([]byte, length)
	copy(out, chunks[0])
	for _, c := range chunks[1:] {
		for i := 0; i < length; i++ {
			out[i] ^= c[i]
		}
	}
	return out
}

// hkdfMix concatenates all chunks as input keying material, runs
// HKDF-Extract with a salt identifying the source count, then
// HKDF-Expand with empty info to the input length.
func hkdfMix(chunks [][]byte) ([]byte, error) {
	length := len(chunks[0])
	ikm := make([]byte, 0, length*len(chunks))
	for _, c := range chunks {
		ikm = append(ikm, c...)
	}
	salt := []byte(fmt.Sprintf("qrng-entropy-mix-%d-sources", len(chunks)))

	reader := hkdf.New(sha256.New, ikm, salt, nil)
	out := make([]byte, length)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, apperr.Wrap(apperr.Crypto, "hkdf expand", err)
	}
	return out, nil
}
