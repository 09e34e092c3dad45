package artifact

import (
	"fmt"
	"time"

	"github.com/arloliu/visco/compress"
	"github.com/arloliu/visco/errs"
	"github.com/arloliu/visco/format"
	"github.com/arloliu/visco/internal/hash"
	"github.com/arloliu/visco/internal/pool"
	"github.com/arloliu/visco/model"
)

// Encode serializes a model into a self-describing artifact.
//
// Parameters:
//   - m: Model to encode
//   - compression: Payload codec
//   - now: Creation timestamp recorded in the header
//
// Returns:
//   - []byte: Header followed by the compressed payload
//   - compress.Stats: Payload size before and after compression
//   - error: Serialization or compression error
func Encode(m model.Model, compression format.CompressionType, now time.Time) ([]byte, compress.Stats, error) {
	payload, err := model.Marshal(m)
	if err != nil {
		return nil, compress.Stats{}, fmt.Errorf("marshal model %s: %w", m.Key(), err)
	}

	compressed, stats, err := compress.CompressWithStats(compression, payload)
	if err != nil {
		return nil, compress.Stats{}, err
	}

	h := NewHeader(m.Variant(), compression, now)
	h.PayloadSize = uint32(len(compressed)) //nolint:gosec
	h.RawSize = uint32(len(payload))        //nolint:gosec
	h.Checksum = hash.Checksum(payload)

	buf := pool.GetArtifactBuffer()
	defer pool.PutArtifactBuffer(buf)

	_, _ = buf.Write(h.Bytes())
	_, _ = buf.Write(compressed)

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())

	return out, stats, nil
}

// Decode parses an artifact produced by Encode and verifies its checksum.
func Decode(data []byte) (model.Model, Header, error) {
	var h Header
	if err := h.Parse(data); err != nil {
		return nil, Header{}, err
	}

	body := data[HeaderSize:]
	if uint32(len(body)) != h.PayloadSize { //nolint:gosec
		return nil, Header{}, fmt.Errorf("%w: payload is %d bytes, header says %d", errs.ErrInvalidArtifact, len(body), h.PayloadSize)
	}

	codec, err := compress.GetCodec(h.Compression)
	if err != nil {
		return nil, Header{}, fmt.Errorf("%w: %v", errs.ErrInvalidArtifact, err)
	}

	payload, err := codec.Decompress(body)
	if err != nil {
		return nil, Header{}, fmt.Errorf("%w: %v", errs.ErrInvalidArtifact, err)
	}
	if uint32(len(payload)) != h.RawSize || hash.Checksum(payload) != h.Checksum { //nolint:gosec
		return nil, Header{}, errs.ErrChecksumMismatch
	}

	m, err := model.Unmarshal(payload)
	if err != nil {
		return nil, Header{}, err
	}
	if m.Variant() != h.Variant {
		return nil, Header{}, fmt.Errorf("%w: header variant %s, payload variant %s", errs.ErrInvalidArtifact, h.Variant, m.Variant())
	}

	return m, h, nil
}
