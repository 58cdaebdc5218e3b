package onnx

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"

	"github.com/born-ml/onnxbackend/internal/tensor"
)

// TensorFromProto converts a TensorProto to a tensor.
//
// Narrow integer types widen to the nearest supported type (INT16 and UINT16
// to int32, UINT32 and UINT64 to int64) and FLOAT16/BFLOAT16 widen to float32.
// STRING and complex tensors, and tensors stored externally, are rejected.
//
//nolint:gocyclo,cyclop,funlen // One case per ONNX data type.
func TensorFromProto(p *TensorProto) (*tensor.Tensor, error) {
	shape := make(tensor.Shape, len(p.Dims))
	for i, dim := range p.Dims {
		if dim < 0 {
			return nil, fmt.Errorf("tensor %q: negative dimension %d", p.Name, dim)
		}
		shape[i] = int(dim)
	}
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("tensor %q: %w", p.Name, err)
	}
	n := shape.NumElements()

	if p.RawData != nil {
		size := ElemSize(p.DataType)
		if size == 0 {
			return nil, fmt.Errorf("tensor %q: unsupported data type %s", p.Name, DataTypeName(p.DataType))
		}
		if len(p.RawData) != n*size {
			return nil, fmt.Errorf("tensor %q: raw data has %d bytes, shape %v of %s needs %d",
				p.Name, len(p.RawData), shape, DataTypeName(p.DataType), n*size)
		}
	}

	raw := p.RawData
	switch p.DataType {
	case TensorProtoFloat:
		if raw != nil {
			return tensor.New(shape, decodeLE(raw, 4, func(b []byte) float32 {
				return math.Float32frombits(binary.LittleEndian.Uint32(b))
			}))
		}
		return typedFromProto(p, shape, p.FloatData)
	case TensorProtoDouble:
		if raw != nil {
			return tensor.New(shape, decodeLE(raw, 8, func(b []byte) float64 {
				return math.Float64frombits(binary.LittleEndian.Uint64(b))
			}))
		}
		return typedFromProto(p, shape, p.DoubleData)
	case TensorProtoInt32:
		if raw != nil {
			return tensor.New(shape, decodeLE(raw, 4, func(b []byte) int32 {
				return int32(binary.LittleEndian.Uint32(b)) //nolint:gosec // G115: reinterpretation.
			}))
		}
		return typedFromProto(p, shape, p.Int32Data)
	case TensorProtoInt64:
		if raw != nil {
			return tensor.New(shape, decodeLE(raw, 8, func(b []byte) int64 {
				return int64(binary.LittleEndian.Uint64(b)) //nolint:gosec // G115: reinterpretation.
			}))
		}
		return typedFromProto(p, shape, p.Int64Data)
	case TensorProtoInt16:
		if raw != nil {
			return tensor.New(shape, decodeLE(raw, 2, func(b []byte) int32 {
				return int32(int16(binary.LittleEndian.Uint16(b))) //nolint:gosec // G115: reinterpretation.
			}))
		}
		return typedFromProto(p, shape, p.Int32Data)
	case TensorProtoUint16:
		if raw != nil {
			return tensor.New(shape, decodeLE(raw, 2, func(b []byte) int32 {
				return int32(binary.LittleEndian.Uint16(b))
			}))
		}
		return typedFromProto(p, shape, p.Int32Data)
	case TensorProtoUint8:
		if raw != nil {
			return tensor.New(shape, append([]uint8(nil), raw...))
		}
		return typedFromProto(p, shape, convert[int32, uint8](p.Int32Data))
	case TensorProtoInt8:
		if raw != nil {
			return tensor.New(shape, decodeLE(raw, 1, func(b []byte) int8 {
				return int8(b[0]) //nolint:gosec // G115: reinterpretation.
			}))
		}
		return typedFromProto(p, shape, convert[int32, int8](p.Int32Data))
	case TensorProtoBool:
		if raw != nil {
			return tensor.New(shape, decodeLE(raw, 1, func(b []byte) bool { return b[0] != 0 }))
		}
		bools := make([]bool, len(p.Int32Data))
		for i, v := range p.Int32Data {
			bools[i] = v != 0
		}
		return typedFromProto(p, shape, bools)
	case TensorProtoUint32:
		if raw != nil {
			return tensor.New(shape, decodeLE(raw, 4, func(b []byte) int64 {
				return int64(binary.LittleEndian.Uint32(b))
			}))
		}
		return typedFromProto(p, shape, convert[uint64, int64](p.Uint64Data))
	case TensorProtoUint64:
		if raw != nil {
			return tensor.New(shape, decodeLE(raw, 8, func(b []byte) int64 {
				return int64(binary.LittleEndian.Uint64(b)) //nolint:gosec // G115: values above MaxInt64 wrap.
			}))
		}
		return typedFromProto(p, shape, convert[uint64, int64](p.Uint64Data))
	case TensorProtoFloat16:
		if raw != nil {
			return tensor.New(shape, decodeLE(raw, 2, func(b []byte) float32 {
				return float16.Frombits(binary.LittleEndian.Uint16(b)).Float32()
			}))
		}
		f32s := make([]float32, len(p.Int32Data))
		for i, bits := range p.Int32Data {
			f32s[i] = float16.Frombits(uint16(bits)).Float32() //nolint:gosec // G115: low 16 bits hold the value.
		}
		return typedFromProto(p, shape, f32s)
	case TensorProtoBfloat16:
		if raw == nil {
			raw = make([]byte, 2*len(p.Int32Data))
			for i, bits := range p.Int32Data {
				binary.LittleEndian.PutUint16(raw[2*i:], uint16(bits)) //nolint:gosec // G115: low 16 bits hold the value.
			}
		}
		return typedFromProto(p, shape, bfloat16.DecodeFloat32(raw))
	default:
		return nil, fmt.Errorf("tensor %q: unsupported data type %s", p.Name, DataTypeName(p.DataType))
	}
}

// TensorToProto converts a tensor to a TensorProto with little-endian raw data.
func TensorToProto(name string, t *tensor.Tensor) (*TensorProto, error) {
	p := &TensorProto{Name: name}
	for _, d := range t.Shape() {
		p.Dims = append(p.Dims, int64(d))
	}

	switch data := t.Raw().(type) {
	case []float32:
		p.DataType = TensorProtoFloat
		p.RawData = encodeLE(data, 4, func(b []byte, v float32) { binary.LittleEndian.PutUint32(b, math.Float32bits(v)) })
	case []float64:
		p.DataType = TensorProtoDouble
		p.RawData = encodeLE(data, 8, func(b []byte, v float64) { binary.LittleEndian.PutUint64(b, math.Float64bits(v)) })
	case []int32:
		p.DataType = TensorProtoInt32
		p.RawData = encodeLE(data, 4, func(b []byte, v int32) { binary.LittleEndian.PutUint32(b, uint32(v)) }) //nolint:gosec // G115: reinterpretation.
	case []int64:
		p.DataType = TensorProtoInt64
		p.RawData = encodeLE(data, 8, func(b []byte, v int64) { binary.LittleEndian.PutUint64(b, uint64(v)) }) //nolint:gosec // G115: reinterpretation.
	case []uint8:
		p.DataType = TensorProtoUint8
		p.RawData = append([]byte{}, data...)
	case []int8:
		p.DataType = TensorProtoInt8
		p.RawData = encodeLE(data, 1, func(b []byte, v int8) { b[0] = byte(v) }) //nolint:gosec // G115: reinterpretation.
	case []bool:
		p.DataType = TensorProtoBool
		p.RawData = encodeLE(data, 1, func(b []byte, v bool) {
			if v {
				b[0] = 1
			}
		})
	default:
		return nil, fmt.Errorf("tensor %q: unsupported data type %s", name, t.DType())
	}
	return p, nil
}

// ReadTensorFile reads a serialized TensorProto (.pb) and converts it.
// The proto name is returned alongside the tensor.
//
//nolint:gosec // G304: test data paths are user provided.
func ReadTensorFile(path string) (string, *tensor.Tensor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read file: %w", err)
	}
	p, err := ParseTensor(data)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", path, err)
	}
	t, err := TensorFromProto(p)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", path, err)
	}
	return p.Name, t, nil
}

// WriteTensorFile serializes t as a TensorProto to path.
func WriteTensorFile(path, name string, t *tensor.Tensor) error {
	p, err := TensorToProto(name, t)
	if err != nil {
		return err
	}
	data, err := MarshalTensor(p)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// typedFromProto builds a tensor from one of the typed repeated data fields.
func typedFromProto[T tensor.Element](p *TensorProto, shape tensor.Shape, data []T) (*tensor.Tensor, error) {
	if len(data) == 0 && shape.NumElements() > 0 {
		return nil, fmt.Errorf("tensor %q: no data for shape %v", p.Name, shape)
	}
	t, err := tensor.New(shape, data)
	if err != nil {
		return nil, fmt.Errorf("tensor %q: %w", p.Name, err)
	}
	return t, nil
}

func decodeLE[T any](raw []byte, size int, get func([]byte) T) []T {
	out := make([]T, len(raw)/size)
	for i := range out {
		out[i] = get(raw[i*size:])
	}
	return out
}

func encodeLE[T any](data []T, size int, put func([]byte, T)) []byte {
	out := make([]byte, len(data)*size)
	for i, v := range data {
		put(out[i*size:], v)
	}
	return out
}

func convert[From, To int32 | int64 | uint64 | uint8 | int8](in []From) []To {
	out := make([]To, len(in))
	for i, v := range in {
		out[i] = To(v)
	}
	return out
}

// TensorDataType maps an ONNX element type to the tensor type values of that
// type are decoded into, following the widening rules of TensorFromProto.
func TensorDataType(dt int32) (tensor.DataType, bool) {
	switch dt {
	case TensorProtoFloat, TensorProtoFloat16, TensorProtoBfloat16:
		return tensor.Float32, true
	case TensorProtoDouble:
		return tensor.Float64, true
	case TensorProtoInt32, TensorProtoInt16, TensorProtoUint16:
		return tensor.Int32, true
	case TensorProtoInt64, TensorProtoUint32, TensorProtoUint64:
		return tensor.Int64, true
	case TensorProtoUint8:
		return tensor.Uint8, true
	case TensorProtoInt8:
		return tensor.Int8, true
	case TensorProtoBool:
		return tensor.Bool, true
	default:
		return 0, false
	}
}
