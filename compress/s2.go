package compress

import "github.com/klauspost/compress/s2"

// S2 compresses payloads with S2, a Snappy extension, using the better-ratio
// encoder.
type S2 struct{}

func (S2) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	return s2.EncodeBetter(nil, data), nil
}

func (S2) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	n, err := s2.DecodedLen(data)
	if err != nil {
		return nil, err
	}
	if n > MaxPayloadSize {
		return nil, ErrPayloadTooLarge
	}

	return s2.Decode(make([]byte, n), data)
}
