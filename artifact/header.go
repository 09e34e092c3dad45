package artifact

import (
	"fmt"
	"time"

	"github.com/arloliu/visco/endian"
	"github.com/arloliu/visco/errs"
	"github.com/arloliu/visco/format"
)

const (
	// HeaderSize is the fixed size of the artifact header in bytes.
	HeaderSize = 32
	// Version is the current artifact format version.
	Version uint8 = 1

	flagBigEndian uint8 = 0x01
)

// Magic identifies a visco model artifact.
var Magic = [4]byte{'V', 'S', 'C', 'O'}

// Header is the fixed-size prefix of an artifact file.
type Header struct {
	Version     uint8                  // byte offset 4
	Flags       uint8                  // byte offset 5
	Compression format.CompressionType // byte offset 6
	Variant     format.ModelVariant    // byte offset 7
	PayloadSize uint32                 // byte offset 8-11, compressed size
	RawSize     uint32                 // byte offset 12-15, uncompressed size
	Checksum    uint64                 // byte offset 16-23, xxHash64 of the uncompressed payload
	CreatedAt   int64                  // byte offset 24-31, unix microseconds
}

// NewHeader creates a little-endian header for a payload.
func NewHeader(variant format.ModelVariant, compression format.CompressionType, createdAt time.Time) Header {
	return Header{
		Version:     Version,
		Compression: compression,
		Variant:     variant,
		CreatedAt:   createdAt.UnixMicro(),
	}
}

func (h *Header) engine() endian.EndianEngine {
	return endian.FromFlag(h.Flags&flagBigEndian != 0)
}

// Bytes serializes the header.
func (h *Header) Bytes() []byte {
	b := make([]byte, 0, HeaderSize)
	engine := h.engine()

	b = append(b, Magic[:]...)
	b = append(b, h.Version, h.Flags, uint8(h.Compression), uint8(h.Variant))
	b = engine.AppendUint32(b, h.PayloadSize)
	b = engine.AppendUint32(b, h.RawSize)
	b = engine.AppendUint64(b, h.Checksum)
	b = engine.AppendUint64(b, uint64(h.CreatedAt)) //nolint:gosec

	return b
}

// Parse parses the header from the first HeaderSize bytes of data.
//
// Returns:
//   - error: ErrInvalidArtifact for a short buffer or bad magic,
//     ErrUnsupportedVersion for an unknown version
func (h *Header) Parse(data []byte) error {
	if len(data) < HeaderSize {
		return fmt.Errorf("%w: header needs %d bytes, got %d", errs.ErrInvalidArtifact, HeaderSize, len(data))
	}
	if [4]byte(data[0:4]) != Magic {
		return fmt.Errorf("%w: bad magic %q", errs.ErrInvalidArtifact, data[0:4])
	}

	h.Version = data[4]
	h.Flags = data[5]
	h.Compression = format.CompressionType(data[6])
	h.Variant = format.ModelVariant(data[7])
	if h.Version != Version {
		return fmt.Errorf("%w: %d", errs.ErrUnsupportedVersion, h.Version)
	}

	engine := h.engine()
	h.PayloadSize = engine.Uint32(data[8:12])
	h.RawSize = engine.Uint32(data[12:16])
	h.Checksum = engine.Uint64(data[16:24])
	h.CreatedAt = int64(engine.Uint64(data[24:32])) //nolint:gosec

	return nil
}

// CreatedTime returns CreatedAt as a time.Time.
func (h *Header) CreatedTime() time.Time {
	return time.UnixMicro(h.CreatedAt)
}
