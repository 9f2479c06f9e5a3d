package codec

import (
	"bytes"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// compressor is implemented by each of the three compression strategies a
// frame may carry.
type compressor interface {
	Compress(src []byte) ([]byte, error)
	Decompress(src []byte) ([]byte, error)
}

func compressFor(c Compression) compressor {
	switch c {
	case Zstd:
		return zstdCodec{}
	case Lz4:
		return lz4Codec{}
	default:
		return identityCodec{}
	}
}

func decompressFor(c Compression) (compressor, bool) {
	switch c {
	case None:
		return identityCodec{}, true
	case Zstd:
		return zstdCodec{}, true
	case Lz4:
		return lz4Codec{}, true
	default:
		return nil, false
	}
}

type identityCodec struct{}

func (identityCodec) Compress(src []byte) ([]byte, error)   { return src, nil }
func (identityCodec) Decompress(src []byte) ([]byte, error) { return src, nil }

// zstdCodec wraps klauspost/compress/zstd. Encoders and decoders are pooled
// since construction allocates internal tables that are expensive to
// rebuild per frame, and frames are encoded one at a time per stream
// (§4.2's serializer task owns its stream, never shares it).
type zstdCodec struct{}

var (
	zstdEncoderPool = sync.Pool{
		New: func() any {
			enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
			return enc
		},
	}
	zstdDecoderPool = sync.Pool{
		New: func() any {
			dec, _ := zstd.NewReader(nil)
			return dec
		},
	}
)

func (zstdCodec) Compress(src []byte) ([]byte, error) {
	enc := zstdEncoderPool.Get().(*zstd.Encoder)
	defer zstdEncoderPool.Put(enc)
	var buf bytes.Buffer
	enc.Reset(&buf)
	if _, err := enc.Write(src); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (zstdCodec) Decompress(src []byte) ([]byte, error) {
	dec := zstdDecoderPool.Get().(*zstd.Decoder)
	defer zstdDecoderPool.Put(dec)
	if err := dec.Reset(bytes.NewReader(src)); err != nil {
		return nil, err
	}
	return io.ReadAll(dec)
}

// lz4Codec wraps pierrec/lz4/v4.
type lz4Codec struct{}

func (lz4Codec) Compress(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(src); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (lz4Codec) Decompress(src []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(src))
	return io.ReadAll(r)
}
