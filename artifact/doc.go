// Package artifact persists fitted models.
//
// An artifact is a 32-byte header followed by a compressed JSON payload:
//
//	┌───────┬─────┬───────┬──────┬─────────┬─────────┬─────────┬──────────┬──────────┐
//	│ magic │ ver │ flags │ comp │ variant │ payload │ raw     │ checksum │ created  │
//	│ 4B    │ 1B  │ 1B    │ 1B   │ 1B      │ 4B      │ 4B      │ 8B       │ 8B       │
//	└───────┴─────┴───────┴──────┴─────────┴─────────┴─────────┴──────────┴──────────┘
//
// The checksum is xxHash64 of the uncompressed payload. Multi-byte fields are
// little-endian unless the big-endian flag is set.
//
// A Repository groups artifacts into generations. Each generation lives in
// its own directory and is made current by atomically replacing the CURRENT
// file, so readers always see a complete set of models.
package artifact
