package codec

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ample/eventkind"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payloads := [][]byte{
		nil,
		[]byte("short"),
		bytes.Repeat([]byte("x"), CompressionMinBytes-1),
		bytes.Repeat([]byte("ample-gateway-payload"), 10_000),
	}
	compressions := []Compression{None, Zstd, Lz4}

	for _, payload := range payloads {
		for _, c := range compressions {
			frame, err := Encode(eventkind.Account, payload, c)
			require.NoError(t, err)

			kind, decoded, err := Decode(bytes.NewReader(frame))
			require.NoError(t, err)
			assert.Equal(t, eventkind.Account, kind)
			assert.Equal(t, payload, decoded)
		}
	}
}

func TestEncodeForcesIdentityBelowThreshold(t *testing.T) {
	payload := []byte("tiny")
	frame, err := Encode(eventkind.Transaction, payload, Zstd)
	require.NoError(t, err)
	assert.Equal(t, byte(None), frame[4])
}

func TestDecodeCleanEOF(t *testing.T) {
	_, _, err := Decode(bytes.NewReader(nil))
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecodeTruncatedFrame(t *testing.T) {
	frame, err := Encode(eventkind.Block, []byte("hello"), None)
	require.NoError(t, err)

	_, _, err = Decode(bytes.NewReader(frame[:len(frame)-2]))
	assert.ErrorIs(t, err, ErrTruncatedFrame)
}

func TestDecodeUnknownKindTag(t *testing.T) {
	frame, err := Encode(eventkind.Block, []byte("hello"), None)
	require.NoError(t, err)
	frame[5] = 0xFF

	_, _, err = Decode(bytes.NewReader(frame))
	assert.ErrorIs(t, err, ErrInvalidStreamOp)
}

func TestDecodeUnknownCompressionTag(t *testing.T) {
	frame, err := Encode(eventkind.Block, []byte("hello"), None)
	require.NoError(t, err)
	frame[4] = 0xFF

	_, _, err = Decode(bytes.NewReader(frame))
	assert.ErrorIs(t, err, ErrInvalidStreamOp)
}

func TestDecodeFrameTooLarge(t *testing.T) {
	var header [4]byte
	header[0] = 0xFF
	header[1] = 0xFF
	header[2] = 0xFF
	header[3] = 0xFF
	_, _, err := Decode(bytes.NewReader(header[:]))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestEncodeOversizePayloadRejected(t *testing.T) {
	payload := make([]byte, MaxFrameBytes+1)
	_, err := Encode(eventkind.Account, payload, None)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}
