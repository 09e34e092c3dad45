//go:build cgo

package compress

import (
	"fmt"

	"github.com/valyala/gozstd"
)

// Zstd compresses payloads with Zstandard through the cgo libzstd binding.
type Zstd struct{}

const zstdLevel = 5

func (Zstd) Compress(data []byte) ([]byte, error) {
	return gozstd.CompressLevel(nil, data, zstdLevel), nil
}

func (Zstd) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	out, err := gozstd.Decompress(nil, data)
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	if len(out) > MaxPayloadSize {
		return nil, ErrPayloadTooLarge
	}

	return out, nil
}
