// Package hash provides the xxHash64 helpers used for artifact checksums and
// stable identifiers.
package hash

import "github.com/cespare/xxhash/v2"

// ID computes the xxHash64 of the given string.
func ID(data string) uint64 {
	return xxhash.Sum64String(data)
}

// Checksum computes the xxHash64 of a byte payload.
func Checksum(data []byte) uint64 {
	return xxhash.Sum64(data)
}

// Seed derives a deterministic 64-bit seed from a base seed and a label, used
// to give each tree or fold an independent yet reproducible random stream.
func Seed(base uint64, label string) uint64 {
	d := xxhash.New()
	var b [8]byte
	for i := range b {
		b[i] = byte(base >> (8 * i))
	}
	_, _ = d.Write(b[:])
	_, _ = d.WriteString(label)

	return d.Sum64()
}
