package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"ample/codec"
	"ample/eventkind"
)

// ProtocolVersion is the wire protocol version this package speaks. The
// client rejects any connection whose descriptor carries a different
// value (spec §4.3).
const ProtocolVersion uint16 = 1

// KindBitset is a bitmask over eventkind.Kind, one bit per kind, used in
// the handshake to advertise which event kinds a producer carries.
type KindBitset uint8

// BitsetAll enables every known kind.
func BitsetAll() KindBitset {
	var b KindBitset
	for _, k := range eventkind.All {
		b = b.With(k)
	}
	return b
}

func (b KindBitset) With(k eventkind.Kind) KindBitset {
	return b | (1 << uint(k))
}

func (b KindBitset) Has(k eventkind.Kind) bool {
	return b&(1<<uint(k)) != 0
}

// Supersets reports whether b contains every kind set in other.
func (b KindBitset) Supersets(other KindBitset) bool {
	return other&^b == 0
}

// Descriptor is the HandshakeDescriptor sent as the first (and only)
// message on the control stream.
type Descriptor struct {
	ProtocolVersion       uint16
	EnabledKinds          KindBitset
	AdvertisedCompression codec.Compression
	ProducerID            [16]byte
}

// wire layout: u16 version | u8 enabled_kinds | u8 compression | 16 bytes producer_id
const descriptorWireLen = 2 + 1 + 1 + 16

func (d Descriptor) encode() []byte {
	buf := make([]byte, descriptorWireLen)
	binary.BigEndian.PutUint16(buf[0:2], d.ProtocolVersion)
	buf[2] = byte(d.EnabledKinds)
	buf[3] = byte(d.AdvertisedCompression)
	copy(buf[4:], d.ProducerID[:])
	return buf
}

func writeDescriptor(w io.Writer, d Descriptor) error {
	_, err := w.Write(d.encode())
	return err
}

func readDescriptor(r io.Reader) (Descriptor, error) {
	var buf [descriptorWireLen]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Descriptor{}, fmt.Errorf("transport: read handshake descriptor: %w", err)
	}
	return Descriptor{
		ProtocolVersion:       binary.BigEndian.Uint16(buf[0:2]),
		EnabledKinds:          KindBitset(buf[2]),
		AdvertisedCompression: codec.Compression(buf[3]),
		ProducerID:            [16]byte(buf[4:20]),
	}, nil
}

// Errors surfaced to callers. Each one is fatal only for the affected
// connection (spec §7).
var (
	ErrTlsVerify             = errors.New("transport: TLS verification failed")
	ErrIncompatibleHandshake = errors.New("transport: incompatible handshake descriptor")
	ErrTransportTransient    = errors.New("transport: connection lost")
)
