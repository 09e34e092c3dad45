// Package pool provides sync.Pool backed buffers for the prediction and
// artifact encoding hot paths.
package pool

import "sync"

const (
	// ArtifactBufferDefaultSize is the initial capacity of artifact encode buffers.
	ArtifactBufferDefaultSize = 1024 * 16
	// ArtifactBufferMaxThreshold caps buffers returned to the pool.
	ArtifactBufferMaxThreshold = 1024 * 1024 * 4
)

// ByteBuffer is a reusable growable byte slice.
type ByteBuffer struct {
	B []byte
}

// Bytes returns the underlying byte slice.
func (bb *ByteBuffer) Bytes() []byte { return bb.B }

// Reset empties the buffer while keeping its capacity.
func (bb *ByteBuffer) Reset() { bb.B = bb.B[:0] }

// Len returns the number of bytes in the buffer.
func (bb *ByteBuffer) Len() int { return len(bb.B) }

// Write appends data to the buffer.
func (bb *ByteBuffer) Write(data []byte) (int, error) {
	bb.B = append(bb.B, data...)
	return len(data), nil
}

// ByteBufferPool pools ByteBuffers and drops oversized ones on Put.
type ByteBufferPool struct {
	pool         sync.Pool
	maxThreshold int
}

// NewByteBufferPool creates a pool whose buffers start at defaultSize bytes.
func NewByteBufferPool(defaultSize, maxThreshold int) *ByteBufferPool {
	return &ByteBufferPool{
		pool: sync.Pool{
			New: func() any { return &ByteBuffer{B: make([]byte, 0, defaultSize)} },
		},
		maxThreshold: maxThreshold,
	}
}

// Get returns an empty buffer.
func (p *ByteBufferPool) Get() *ByteBuffer {
	bb, _ := p.pool.Get().(*ByteBuffer)
	bb.Reset()

	return bb
}

// Put returns bb to the pool unless it grew beyond the threshold.
func (p *ByteBufferPool) Put(bb *ByteBuffer) {
	if bb == nil {
		return
	}
	if p.maxThreshold > 0 && cap(bb.B) > p.maxThreshold {
		return
	}
	p.pool.Put(bb)
}

var artifactPool = NewByteBufferPool(ArtifactBufferDefaultSize, ArtifactBufferMaxThreshold)

// GetArtifactBuffer retrieves a buffer from the shared artifact pool.
func GetArtifactBuffer() *ByteBuffer { return artifactPool.Get() }

// PutArtifactBuffer returns a buffer to the shared artifact pool.
func PutArtifactBuffer(bb *ByteBuffer) { artifactPool.Put(bb) }

var float64SlicePool = sync.Pool{
	New: func() any { return &[]float64{} },
}

// GetFloat64Slice retrieves a zeroed float64 slice of length size.
//
// The caller must call the returned cleanup function (typically with defer)
// once the slice is no longer referenced.
//
// Example:
//
//	x, cleanup := pool.GetFloat64Slice(len(schema))
//	defer cleanup()
func GetFloat64Slice(size int) ([]float64, func()) {
	ptr, _ := float64SlicePool.Get().(*[]float64)
	slice := (*ptr)[:0]

	if cap(slice) < size {
		slice = make([]float64, size)
	} else {
		slice = slice[:size]
		clear(slice)
	}
	*ptr = slice

	return slice, func() { float64SlicePool.Put(ptr) }
}
