package durable

import (
	"encoding/binary"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"

	"github.com/selfmemory/engine/internal/memerr"
)

// CompressionAlgo selects the codec used for payloads above the
// compression threshold.
type CompressionAlgo byte

const (
	// AlgoNone stores the payload uncompressed.
	AlgoNone CompressionAlgo = 0
	// AlgoS2 is the latency-optimized codec (github.com/klauspost/compress/s2).
	AlgoS2 CompressionAlgo = 1
	// AlgoZstd is the ratio-optimized codec (github.com/klauspost/compress/zstd).
	AlgoZstd CompressionAlgo = 2
)

// headerSize is {algo byte}{orig_len uint32 big-endian}.
const headerSize = 5

// DefaultCompressionThreshold is the byte size above which a payload is
// compressed before being written to a BLOB column.
const DefaultCompressionThreshold = 1024

var zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
var zstdDecoder, _ = zstd.NewReader(nil)

// Compress prefixes payload with a {algo, orig_len} header and compresses
// it with algo if len(payload) >= threshold; otherwise it is stored
// verbatim under AlgoNone.
func Compress(payload []byte, algo CompressionAlgo, threshold int) []byte {
	if threshold <= 0 {
		threshold = DefaultCompressionThreshold
	}
	if len(payload) < threshold || algo == AlgoNone {
		return withHeader(AlgoNone, payload, payload)
	}

	var compressed []byte
	switch algo {
	case AlgoS2:
		compressed = s2.Encode(nil, payload)
	case AlgoZstd:
		compressed = zstdEncoder.EncodeAll(payload, nil)
	default:
		return withHeader(AlgoNone, payload, payload)
	}
	return withHeader(algo, payload, compressed)
}

func withHeader(algo CompressionAlgo, orig, body []byte) []byte {
	out := make([]byte, headerSize+len(body))
	out[0] = byte(algo)
	binary.BigEndian.PutUint32(out[1:5], uint32(len(orig)))
	copy(out[headerSize:], body)
	return out
}

// Decompress inspects the header written by Compress and returns the
// original payload.
func Decompress(blob []byte) ([]byte, error) {
	if len(blob) < headerSize {
		return nil, memerr.New(memerr.KindSerialization, "compressed blob shorter than header")
	}
	algo := CompressionAlgo(blob[0])
	origLen := binary.BigEndian.Uint32(blob[1:5])
	body := blob[headerSize:]

	switch algo {
	case AlgoNone:
		return body, nil
	case AlgoS2:
		out, err := s2.Decode(make([]byte, 0, origLen), body)
		if err != nil {
			return nil, memerr.Wrap(memerr.KindSerialization, err, "s2 decompress failed")
		}
		return out, nil
	case AlgoZstd:
		out, err := zstdDecoder.DecodeAll(body, make([]byte, 0, origLen))
		if err != nil {
			return nil, memerr.Wrap(memerr.KindSerialization, err, "zstd decompress failed")
		}
		return out, nil
	default:
		return nil, memerr.New(memerr.KindSerialization, "unknown compression algo tag %d", algo)
	}
}
