// Package compress provides the payload codecs for visco model artifacts.
//
// An artifact is a fixed header followed by a JSON payload describing the
// fitted estimators. The payload is compressed with the codec named in the
// header, so readers never need to be configured to match the writer. Zstd
// is the default for published generations; None leaves payloads readable
// by hand.
//
// Zstd uses github.com/valyala/gozstd when cgo is available and
// github.com/klauspost/compress/zstd otherwise. Both produce standard frames,
// so artifacts are portable between the two builds.
package compress
