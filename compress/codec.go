package compress

import (
	"errors"
	"fmt"

	"github.com/arloliu/visco/format"
)

// MaxPayloadSize bounds a decompressed artifact payload. Decoders reject
// frames that claim more.
const MaxPayloadSize = 64 << 20

// ErrPayloadTooLarge is returned when a frame decodes past MaxPayloadSize.
var ErrPayloadTooLarge = errors.New("compressed payload exceeds maximum size")

// Codec compresses and restores artifact payloads. Implementations are
// stateless and safe for concurrent use; returned slices are owned by the
// caller and inputs are never modified.
type Codec interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// Stats describes a single compression of an artifact payload. The repository
// logs it when a generation is published.
type Stats struct {
	Algorithm      format.CompressionType
	OriginalSize   int64
	CompressedSize int64
}

// Ratio returns compressed size / original size, or 0 for an empty payload.
func (s Stats) Ratio() float64 {
	if s.OriginalSize == 0 {
		return 0
	}

	return float64(s.CompressedSize) / float64(s.OriginalSize)
}

// SpaceSavings returns the space saved as a percentage.
func (s Stats) SpaceSavings() float64 {
	return (1 - s.Ratio()) * 100
}

var codecs = map[format.CompressionType]Codec{
	format.CompressionNone: None{},
	format.CompressionZstd: Zstd{},
	format.CompressionS2:   S2{},
	format.CompressionLZ4:  LZ4{},
}

// GetCodec returns the codec for a compression type.
func GetCodec(t format.CompressionType) (Codec, error) {
	if c, ok := codecs[t]; ok {
		return c, nil
	}

	return nil, fmt.Errorf("unsupported compression type: %s", t)
}

// CompressWithStats compresses data and reports the size change.
func CompressWithStats(t format.CompressionType, data []byte) ([]byte, Stats, error) {
	c, err := GetCodec(t)
	if err != nil {
		return nil, Stats{}, err
	}

	out, err := c.Compress(data)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("%s compression: %w", t, err)
	}

	return out, Stats{
		Algorithm:      t,
		OriginalSize:   int64(len(data)),
		CompressedSize: int64(len(out)),
	}, nil
}

// None stores payloads as-is.
type None struct{}

func (None) Compress(data []byte) ([]byte, error) { return data, nil }

func (None) Decompress(data []byte) ([]byte, error) {
	if len(data) > MaxPayloadSize {
		return nil, ErrPayloadTooLarge
	}

	return data, nil
}
