// Package protocol implements the EntropyPacket wire unit: canonical
// signing bytes, HMAC-SHA256 authentication, CRC32 payload checksum, and
// the self-describing msgpack wire format that crosses the Collector →
// Gateway boundary.
package protocol

import (
	"encoding/binary"
	"time"

	"github.com/google/uuid"
)

// Version is the only packet format version currently produced.
const Version byte = 1

// Packet is the wire unit pushed from Collector to Gateway.
type Packet struct {
	Version   byte      `msgpack:"version"`
	ID        string    `msgpack:"id"`
	Sequence  uint64    `msgpack:"sequence"`
	Data      []byte    `msgpack:"data"`
	Timestamp time.Time `msgpack:"timestamp"`
	Signature []byte    `msgpack:"signature"`
	Checksum  uint32    `msgpack:"checksum"`
}

// New builds an unsigned packet with a fresh random ID and the given
// sequence and data; timestamp is set to now.
func New(sequence uint64, data []byte) *Packet {
	return &Packet{
		Version:   Version,
		ID:        uuid.NewString(),
		Sequence:  sequence,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// CanonicalBytes returns version ‖ sequence_BE ‖ data ‖ timestamp_nanos_BE,
// the flat byte string that HMAC signing covers. It is distinct from the
// wire (msgpack) serialization.
func (p *Packet) CanonicalBytes() []byte {
	buf := make([]byte, 0, 1+8+len(p.Data)+8)
	buf = append(buf, p.Version)

	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], p.Sequence)
	buf = append(buf, seq[:]...)

	buf = append(buf, p.Data...)

	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(p.Timestamp.UnixNano()))
	buf = append(buf, ts[:]...)

	return buf
}

// IsStale reports whether the packet's timestamp is older than now-ttl.
// A zero ttl disables staleness checking (always fresh).
func IsStale(p *Packet, ttl time.Duration, now time.Time) bool {
	if ttl <= 0 {
		return false
	}
	return now.Sub(p.Timestamp) > ttl
}
