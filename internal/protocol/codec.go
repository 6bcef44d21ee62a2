package protocol

import (
	"github.com/vmihailenco/msgpack/v5"

	"github.com/ocx/qrng-diode/internal/apperr"
)

// Marshal serializes a packet into the self-describing, length-prefixed
// msgpack wire format. Field names match the data-model attributes
// exactly so forward-compatible fields can be added without breaking
// parsers.
func Marshal(p *Packet) ([]byte, error) {
	b, err := msgpack.Marshal(p)
	if err != nil {
		return nil, apperr.Wrap(apperr.Serialization, "marshal packet", err)
	}
	return b, nil
}

// Unmarshal decodes the msgpack wire format produced by Marshal.
func Unmarshal(data []byte) (*Packet, error) {
	var p Packet
	if err := msgpack.Unmarshal(data, &p); err != nil {
		return nil, apperr.Wrap(apperr.Serialization, "unmarshal packet", err)
	}
	return &p, nil
}
