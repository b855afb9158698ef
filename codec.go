package arae

import (
	"bytes"
	"compress/flate"
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
	"github.com/unixpickle/anyvec"
)

const (
	codecFloat64 byte = 64
	codecFloat32 byte = 32
)

// encodeVector compresses a vector's components.
//
// The first byte is the precision, followed by the
// flate-compressed little-endian components.
func encodeVector(v anyvec.Vector) ([]byte, error) {
	var raw bytes.Buffer
	var precision byte
	switch data := v.Data().(type) {
	case []float32:
		precision = codecFloat32
		encoded := make([]byte, len(data)*4)
		for i, num := range data {
			binary.LittleEndian.PutUint32(encoded[i*4:], math.Float32bits(num))
		}
		raw.Write(encoded)
	case []float64:
		precision = codecFloat64
		binary.Write(&raw, binary.LittleEndian, data)
	default:
		return nil, errors.Errorf("encode vector: unsupported numeric list %T", data)
	}

	var compressed bytes.Buffer
	compressed.WriteByte(precision)
	w, err := flate.NewWriter(&compressed, flate.DefaultCompression)

	// Only fails for invalid levels.
	if err != nil {
		panic(err)
	}

	if _, err := io.Copy(w, &raw); err != nil {
		return nil, errors.Wrap(err, "encode vector")
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "encode vector")
	}
	return compressed.Bytes(), nil
}

// decodeVector decodes the output of encodeVector into a
// vector of the creator's type.
// The stored precision need not match the creator.
func decodeVector(c anyvec.Creator, data []byte) (anyvec.Vector, error) {
	if len(data) == 0 {
		return nil, errors.New("decode vector: empty data")
	}
	var raw bytes.Buffer
	if _, err := io.Copy(&raw, flate.NewReader(bytes.NewReader(data[1:]))); err != nil {
		return nil, errors.Wrap(err, "decode vector")
	}
	rawBytes := raw.Bytes()

	var nums []float64
	switch data[0] {
	case codecFloat32:
		if len(rawBytes)%4 != 0 {
			return nil, errors.New("decode vector: truncated data")
		}
		nums = make([]float64, len(rawBytes)/4)
		for i := range nums {
			nums[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(rawBytes[i*4:])))
		}
	case codecFloat64:
		if len(rawBytes)%8 != 0 {
			return nil, errors.New("decode vector: truncated data")
		}
		nums = make([]float64, len(rawBytes)/8)
		if err := binary.Read(&raw, binary.LittleEndian, nums); err != nil {
			return nil, errors.Wrap(err, "decode vector")
		}
	default:
		return nil, errors.Errorf("decode vector: unknown precision %d", data[0])
	}
	return makeVector(c, nums), nil
}
