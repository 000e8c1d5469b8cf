package services

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/golang/snappy"
)

// EncodeSnapshot packs model parameters as little-endian float64 values and
// compresses them with snappy.
func EncodeSnapshot(params []float64) []byte {
	raw := make([]byte, 8*len(params))
	for i, v := range params {
		binary.LittleEndian.PutUint64(raw[8*i:], math.Float64bits(v))
	}
	return snappy.Encode(nil, raw)
}

func DecodeSnapshot(data []byte) ([]float64, error) {
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress model snapshot: %w", err)
	}
	if len(raw)%8 != 0 {
		return nil, fmt.Errorf("model snapshot has %d bytes, not a multiple of 8", len(raw))
	}

	params := make([]float64, len(raw)/8)
	for i := range params {
		params[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[8*i:]))
	}
	return params, nil
}
