//go:build !cgo

package compress

import (
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Zstd compresses payloads with Zstandard using the pure Go implementation.
type Zstd struct{}

// EncodeAll and DecodeAll are safe for concurrent use, so one shared coder
// per direction serves every call.
var zstdCoders = sync.OnceValues(func() (*zstd.Encoder, *zstd.Decoder) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression), zstd.WithEncoderCRC(true))
	if err != nil {
		panic(fmt.Sprintf("zstd encoder: %v", err))
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0), zstd.WithDecoderMaxMemory(MaxPayloadSize))
	if err != nil {
		panic(fmt.Sprintf("zstd decoder: %v", err))
	}

	return enc, dec
})

func (Zstd) Compress(data []byte) ([]byte, error) {
	enc, _ := zstdCoders()

	return enc.EncodeAll(data, nil), nil
}

func (Zstd) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	_, dec := zstdCoders()
	out, err := dec.DecodeAll(data, nil)
	if errors.Is(err, zstd.ErrDecoderSizeExceeded) {
		return nil, ErrPayloadTooLarge
	}
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}

	return out, nil
}
