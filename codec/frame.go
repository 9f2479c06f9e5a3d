// Package codec implements the on-wire frame format shared by every QUIC
// data stream: a length-prefixed frame carrying a compression tag, a kind
// tag, and an opaque payload.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"ample/eventkind"
)

// Compression identifies how a frame's payload is encoded on the wire. The
// tag travels with every frame and is authoritative; a peer's advertised
// preference (HandshakeDescriptor.advertised_compression) is advisory only,
// which lets a sender drop to None for small payloads mid-stream.
type Compression uint8

const (
	None Compression = 0
	Zstd Compression = 1
	Lz4  Compression = 2
)

func (c Compression) String() string {
	switch c {
	case None:
		return "none"
	case Zstd:
		return "zstd"
	case Lz4:
		return "lz4"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

const (
	// MaxFrameBytes bounds a frame's length after compression. Encode
	// returns ErrFrameTooLarge for an oversize frame and the caller drops
	// the record; the decoder rejects any frame that declares a larger
	// length.
	MaxFrameBytes = 16 << 20

	// CompressionMinBytes is the floor below which a payload is always
	// sent uncompressed, since compression headers tend to cost more than
	// they save on small records.
	CompressionMinBytes = 256

	// frameHeaderLen is the fixed portion of a frame: 4-byte length + 1
	// compression tag + 1 kind tag.
	frameHeaderLen = 4 + 1 + 1
)

// Errors returned by Decode. Each one fates the stream it occurred on per
// the §3 invariant that a connection's streams share fate.
var (
	ErrFrameTooLarge   = errors.New("codec: frame exceeds MAX_FRAME_BYTES")
	ErrInvalidStreamOp = errors.New("codec: unknown compression or kind tag")
	ErrTruncatedFrame  = errors.New("codec: stream closed mid-frame")
)

// Encode chooses compression for payload (forcing None below
// CompressionMinBytes regardless of the caller's request), compresses it,
// and returns the complete wire frame: length | compression_tag | kind_tag
// | bytes.
func Encode(kind eventkind.Kind, payload []byte, compression Compression) ([]byte, error) {
	effective := compression
	if len(payload) < CompressionMinBytes {
		effective = None
	}

	body, err := compressFor(effective).Compress(payload)
	if err != nil {
		return nil, fmt.Errorf("codec: compress with %s: %w", effective, err)
	}

	total := frameHeaderLen - 4 + len(body)
	if total > MaxFrameBytes {
		return nil, ErrFrameTooLarge
	}

	frame := make([]byte, 4+total)
	binary.BigEndian.PutUint32(frame[0:4], uint32(total))
	frame[4] = byte(effective)
	frame[5] = byte(kind)
	copy(frame[6:], body)
	return frame, nil
}

// Decode reads exactly one frame from r, using its own compression tag
// (not the caller's expectation) to pick a decompressor. An empty payload
// decodes as nil.
//
// A clean EOF at a frame boundary returns io.EOF unwrapped, signalling a
// graceful stream close. Any other read failure mid-frame is
// ErrTruncatedFrame.
func Decode(r io.Reader) (kind eventkind.Kind, payload []byte, err error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, nil, io.EOF
		}
		return 0, nil, fmt.Errorf("%w: %v", ErrTruncatedFrame, err)
	}

	length := binary.BigEndian.Uint32(header[:])
	if int(length) > MaxFrameBytes {
		return 0, nil, ErrFrameTooLarge
	}
	if length < 2 {
		return 0, nil, ErrInvalidStreamOp
	}

	rest := make([]byte, length)
	if _, err := io.ReadFull(r, rest); err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrTruncatedFrame, err)
	}

	compression := Compression(rest[0])
	kindTag := eventkind.Kind(rest[1])
	if !kindTag.Valid() {
		return 0, nil, ErrInvalidStreamOp
	}

	decompressor, ok := decompressFor(compression)
	if !ok {
		return 0, nil, ErrInvalidStreamOp
	}

	body, err := decompressor.Decompress(rest[2:])
	if err != nil {
		return 0, nil, fmt.Errorf("codec: decompress with %s: %w", compression, err)
	}
	if len(body) == 0 {
		body = nil
	}
	return kindTag, body, nil
}
