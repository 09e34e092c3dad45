// Package endian provides the byte order used by the model artifact header.
//
// Artifacts are written little-endian. A header flag records the order so a
// big-endian writer stays readable.
package endian

import "encoding/binary"

// EndianEngine decodes fixed offsets and appends fields in one byte order.
type EndianEngine interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// Little and Big are the two engines.
var (
	Little EndianEngine = binary.LittleEndian
	Big    EndianEngine = binary.BigEndian
)

// FromFlag maps the artifact header endian flag to an engine.
func FromFlag(bigEndian bool) EndianEngine {
	if bigEndian {
		return Big
	}

	return Little
}
