package protocol

import (
	"crypto/hmac"
	"crypto/sha256"
	"hash/crc32"

	"github.com/ocx/qrng-diode/internal/apperr"
)

// Signer computes and verifies HMAC-SHA256 signatures over a packet's
// canonical bytes. The key is immutable shared state.
type Signer struct {
	key []byte
}

// NewSigner constructs a Signer from a raw (already hex-decoded) key.
func NewSigner(key []byte) (*Signer, error) {
	if len(key) == 0 {
		return nil, apperr.New(apperr.Crypto, "hmac key must not be empty")
	}
	return &Signer{key: key}, nil
}

// SignPacket computes HMAC-SHA256 over the packet's canonical bytes and
// assigns it to p.Signature.
func (s *Signer) SignPacket(p *Packet) error {
	if len(s.key) == 0 {
		return apperr.New(apperr.Crypto, "signer misconfigured: empty key")
	}
	mac := hmac.New(sha256.New, s.key)
	mac.Write(p.CanonicalBytes())
	p.Signature = mac.Sum(nil)
	return nil
}

// VerifyPacket recomputes the HMAC over the packet's canonical bytes and
// compares in constant time against p.Signature.
func (s *Signer) VerifyPacket(p *Packet) (bool, error) {
	if len(s.key) == 0 {
		return false, apperr.New(apperr.Crypto, "signer misconfigured: empty key")
	}
	mac := hmac.New(sha256.New, s.key)
	mac.Write(p.CanonicalBytes())
	expected := mac.Sum(nil)
	return hmac.Equal(expected, p.Signature), nil
}

// CalculateChecksum returns the CRC32 (IEEE) of data.
func CalculateChecksum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// VerifyChecksum reports true when checksum is zero (absent, no-op) or
// matches CalculateChecksum(data).
func VerifyChecksum(data []byte, checksum uint32) bool {
	if checksum == 0 {
		return true
	}
	return checksum == CalculateChecksum(data)
}
