package compress

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// LZ4 stores a payload as one LZ4 block prefixed with its uvarint decoded
// length, so decoding allocates exactly once.
type LZ4 struct{}

func (LZ4) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	out := make([]byte, binary.MaxVarintLen64+lz4.CompressBlockBound(len(data)))
	n := binary.PutUvarint(out, uint64(len(data)))

	m, err := lz4.CompressBlock(data, out[n:], nil)
	if err != nil {
		return nil, err
	}
	if m == 0 {
		return nil, errors.New("lz4: block did not fit bound")
	}

	return out[:n+m], nil
}

func (LZ4) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	size, n := binary.Uvarint(data)
	if n <= 0 {
		return nil, errors.New("lz4: invalid length prefix")
	}
	if size > MaxPayloadSize {
		return nil, ErrPayloadTooLarge
	}

	out := make([]byte, size)
	m, err := lz4.UncompressBlock(data[n:], out)
	if err != nil {
		return nil, fmt.Errorf("lz4: %w", err)
	}
	if uint64(m) != size {
		return nil, fmt.Errorf("lz4: decoded %d bytes, frame declares %d", m, size)
	}

	return out, nil
}
