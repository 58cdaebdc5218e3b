package onnx

import (
	"errors"
	"fmt"
	"math"
	"os"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrMalformed is returned when bytes are not a valid ONNX protobuf message.
var ErrMalformed = errors.New("malformed onnx protobuf")

// ParseFile parses an ONNX model from file.
//
//nolint:gosec // G304: Path is provided by user, file inclusion is intentional for ONNX model loading
func ParseFile(path string) (*ModelProto, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(data)
}

// Parse parses an ONNX model from bytes.
func Parse(data []byte) (*ModelProto, error) {
	model := &ModelProto{}
	if err := decodeModel(data, model); err != nil {
		return nil, fmt.Errorf("failed to parse model: %w", err)
	}
	return model, nil
}

// ParseTensor parses a serialized TensorProto, the format of the .pb files in
// ONNX test data sets.
func ParseTensor(data []byte) (*TensorProto, error) {
	t := &TensorProto{}
	if err := decodeTensor(data, t); err != nil {
		return nil, fmt.Errorf("failed to parse tensor: %w", err)
	}
	return t, nil
}

// field is one decoded tag and its undecoded value bytes.
type field struct {
	num protowire.Number
	typ protowire.Type
	val []byte
}

func malformed(n int) error {
	return fmt.Errorf("%w: %w", ErrMalformed, protowire.ParseError(n))
}

// walk calls visit for every field of the message encoded in b.
func walk(b []byte, visit func(f field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return malformed(n)
		}
		b = b[n:]
		m := protowire.ConsumeFieldValue(num, typ, b)
		if m < 0 {
			return malformed(m)
		}
		if err := visit(field{num: num, typ: typ, val: b[:m]}); err != nil {
			return err
		}
		b = b[m:]
	}
	return nil
}

func (f field) wrongType() error {
	return fmt.Errorf("%w: field %d has unexpected wire type %d", ErrMalformed, f.num, f.typ)
}

func (f field) bytes() ([]byte, error) {
	if f.typ != protowire.BytesType {
		return nil, f.wrongType()
	}
	v, n := protowire.ConsumeBytes(f.val)
	if n < 0 {
		return nil, malformed(n)
	}
	return v, nil
}

func (f field) str() (string, error) {
	v, err := f.bytes()
	return string(v), err
}

func (f field) varint() (uint64, error) {
	if f.typ != protowire.VarintType {
		return 0, f.wrongType()
	}
	v, n := protowire.ConsumeVarint(f.val)
	if n < 0 {
		return 0, malformed(n)
	}
	return v, nil
}

func (f field) i64() (int64, error) {
	v, err := f.varint()
	return int64(v), err //nolint:gosec // G115: int64 fields are encoded as two's complement varints.
}

func (f field) i32() (int32, error) {
	v, err := f.varint()
	return int32(v), err //nolint:gosec // G115: int32 fields are encoded as sign-extended varints.
}

func (f field) f32() (float32, error) {
	if f.typ != protowire.Fixed32Type {
		return 0, f.wrongType()
	}
	v, n := protowire.ConsumeFixed32(f.val)
	if n < 0 {
		return 0, malformed(n)
	}
	return math.Float32frombits(v), nil
}

// varints decodes a repeated varint field in either packed or unpacked form.
func (f field) varints() ([]uint64, error) {
	if f.typ == protowire.VarintType {
		v, err := f.varint()
		return []uint64{v}, err
	}
	b, err := f.bytes()
	if err != nil {
		return nil, err
	}
	var out []uint64
	for len(b) > 0 {
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return nil, malformed(n)
		}
		out = append(out, v)
		b = b[n:]
	}
	return out, nil
}

func (f field) int64s() ([]int64, error) {
	vs, err := f.varints()
	if err != nil {
		return nil, err
	}
	out := make([]int64, len(vs))
	for i, v := range vs {
		out[i] = int64(v) //nolint:gosec // G115: two's complement varint.
	}
	return out, nil
}

func (f field) int32s() ([]int32, error) {
	vs, err := f.varints()
	if err != nil {
		return nil, err
	}
	out := make([]int32, len(vs))
	for i, v := range vs {
		out[i] = int32(v) //nolint:gosec // G115: sign-extended varint.
	}
	return out, nil
}

// fixed32s decodes a repeated fixed32 field in either packed or unpacked form.
func (f field) fixed32s() ([]uint32, error) {
	if f.typ == protowire.Fixed32Type {
		v, n := protowire.ConsumeFixed32(f.val)
		if n < 0 {
			return nil, malformed(n)
		}
		return []uint32{v}, nil
	}
	b, err := f.bytes()
	if err != nil {
		return nil, err
	}
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("%w: packed fixed32 field %d has %d bytes", ErrMalformed, f.num, len(b))
	}
	out := make([]uint32, 0, len(b)/4)
	for len(b) > 0 {
		v, n := protowire.ConsumeFixed32(b)
		if n < 0 {
			return nil, malformed(n)
		}
		out = append(out, v)
		b = b[n:]
	}
	return out, nil
}

// fixed64s decodes a repeated fixed64 field in either packed or unpacked form.
func (f field) fixed64s() ([]uint64, error) {
	if f.typ == protowire.Fixed64Type {
		v, n := protowire.ConsumeFixed64(f.val)
		if n < 0 {
			return nil, malformed(n)
		}
		return []uint64{v}, nil
	}
	b, err := f.bytes()
	if err != nil {
		return nil, err
	}
	if len(b)%8 != 0 {
		return nil, fmt.Errorf("%w: packed fixed64 field %d has %d bytes", ErrMalformed, f.num, len(b))
	}
	out := make([]uint64, 0, len(b)/8)
	for len(b) > 0 {
		v, n := protowire.ConsumeFixed64(b)
		if n < 0 {
			return nil, malformed(n)
		}
		out = append(out, v)
		b = b[n:]
	}
	return out, nil
}

func (f field) float32s() ([]float32, error) {
	vs, err := f.fixed32s()
	if err != nil {
		return nil, err
	}
	out := make([]float32, len(vs))
	for i, v := range vs {
		out[i] = math.Float32frombits(v)
	}
	return out, nil
}

func (f field) float64s() ([]float64, error) {
	vs, err := f.fixed64s()
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(vs))
	for i, v := range vs {
		out[i] = math.Float64frombits(v)
	}
	return out, nil
}

// message decodes an embedded message field with dec.
func message[T any](f field, dec func([]byte, *T) error) (*T, error) {
	b, err := f.bytes()
	if err != nil {
		return nil, err
	}
	m := new(T)
	if err := dec(b, m); err != nil {
		return nil, err
	}
	return m, nil
}

//nolint:gocyclo,cyclop // Protobuf decoding is a field-by-field switch.
func decodeModel(b []byte, m *ModelProto) error {
	return walk(b, func(f field) error {
		var err error
		switch f.num {
		case 1: // ir_version
			m.IRVersion, err = f.i64()
		case 2: // producer_name
			m.ProducerName, err = f.str()
		case 3: // producer_version
			m.ProducerVersion, err = f.str()
		case 4: // domain
			m.Domain, err = f.str()
		case 5: // model_version
			m.ModelVersion, err = f.i64()
		case 6: // doc_string
			m.DocString, err = f.str()
		case 7: // graph
			m.Graph, err = message(f, decodeGraph)
		case 8: // opset_import
			var opset *OperatorSetID
			if opset, err = message(f, decodeOperatorSetID); err == nil {
				m.OpsetImport = append(m.OpsetImport, *opset)
			}
		case 14: // metadata_props
			var entry *StringStringEntry
			if entry, err = message(f, decodeStringStringEntry); err == nil {
				m.MetadataProps = append(m.MetadataProps, *entry)
			}
		}
		return err
	})
}

//nolint:gocyclo,cyclop // Protobuf decoding is a field-by-field switch.
func decodeGraph(b []byte, m *GraphProto) error {
	return walk(b, func(f field) error {
		var err error
		switch f.num {
		case 1: // node
			var node *NodeProto
			if node, err = message(f, decodeNode); err == nil {
				m.Nodes = append(m.Nodes, *node)
			}
		case 2: // name
			m.Name, err = f.str()
		case 5: // initializer
			var t *TensorProto
			if t, err = message(f, decodeTensor); err == nil {
				m.Initializers = append(m.Initializers, *t)
			}
		case 10: // doc_string
			m.DocString, err = f.str()
		case 11: // input
			var vi *ValueInfoProto
			if vi, err = message(f, decodeValueInfo); err == nil {
				m.Inputs = append(m.Inputs, *vi)
			}
		case 12: // output
			var vi *ValueInfoProto
			if vi, err = message(f, decodeValueInfo); err == nil {
				m.Outputs = append(m.Outputs, *vi)
			}
		case 13: // value_info
			var vi *ValueInfoProto
			if vi, err = message(f, decodeValueInfo); err == nil {
				m.ValueInfo = append(m.ValueInfo, *vi)
			}
		}
		return err
	})
}

func decodeNode(b []byte, m *NodeProto) error {
	return walk(b, func(f field) error {
		var err error
		switch f.num {
		case 1: // input
			var s string
			if s, err = f.str(); err == nil {
				m.Inputs = append(m.Inputs, s)
			}
		case 2: // output
			var s string
			if s, err = f.str(); err == nil {
				m.Outputs = append(m.Outputs, s)
			}
		case 3: // name
			m.Name, err = f.str()
		case 4: // op_type
			m.OpType, err = f.str()
		case 5: // attribute
			var attr *AttributeProto
			if attr, err = message(f, decodeAttribute); err == nil {
				m.Attributes = append(m.Attributes, *attr)
			}
		case 6: // doc_string
			m.DocString, err = f.str()
		case 7: // domain
			m.Domain, err = f.str()
		}
		return err
	})
}

//nolint:gocyclo,cyclop // Protobuf decoding is a field-by-field switch.
func decodeTensor(b []byte, m *TensorProto) error {
	return walk(b, func(f field) error {
		var err error
		switch f.num {
		case 1: // dims
			var dims []int64
			if dims, err = f.int64s(); err == nil {
				m.Dims = append(m.Dims, dims...)
			}
		case 2: // data_type
			m.DataType, err = f.i32()
		case 4: // float_data
			var vs []float32
			if vs, err = f.float32s(); err == nil {
				m.FloatData = append(m.FloatData, vs...)
			}
		case 5: // int32_data
			var vs []int32
			if vs, err = f.int32s(); err == nil {
				m.Int32Data = append(m.Int32Data, vs...)
			}
		case 6: // string_data
			var s []byte
			if s, err = f.bytes(); err == nil {
				m.StringData = append(m.StringData, s)
			}
		case 7: // int64_data
			var vs []int64
			if vs, err = f.int64s(); err == nil {
				m.Int64Data = append(m.Int64Data, vs...)
			}
		case 8: // name
			m.Name, err = f.str()
		case 9: // raw_data
			m.RawData, err = f.bytes()
		case 10: // double_data
			var vs []float64
			if vs, err = f.float64s(); err == nil {
				m.DoubleData = append(m.DoubleData, vs...)
			}
		case 11: // uint64_data
			var vs []uint64
			if vs, err = f.varints(); err == nil {
				m.Uint64Data = append(m.Uint64Data, vs...)
			}
		case 12: // doc_string
			m.DocString, err = f.str()
		}
		return err
	})
}

func decodeValueInfo(b []byte, m *ValueInfoProto) error {
	return walk(b, func(f field) error {
		var err error
		switch f.num {
		case 1: // name
			m.Name, err = f.str()
		case 2: // type
			m.Type, err = message(f, decodeType)
		case 3: // doc_string
			m.DocString, err = f.str()
		}
		return err
	})
}

func decodeType(b []byte, m *TypeProto) error {
	return walk(b, func(f field) error {
		if f.num != 1 { // tensor_type; sequence, map and optional types are skipped
			return nil
		}
		var err error
		m.TensorType, err = message(f, decodeTensorType)
		return err
	})
}

func decodeTensorType(b []byte, m *TensorTypeProto) error {
	return walk(b, func(f field) error {
		var err error
		switch f.num {
		case 1: // elem_type
			m.ElemType, err = f.i32()
		case 2: // shape
			m.Shape, err = message(f, decodeTensorShape)
		}
		return err
	})
}

func decodeTensorShape(b []byte, m *TensorShapeProto) error {
	return walk(b, func(f field) error {
		if f.num != 1 { // dim
			return nil
		}
		dim, err := message(f, decodeDimension)
		if err == nil {
			m.Dims = append(m.Dims, *dim)
		}
		return err
	})
}

func decodeDimension(b []byte, m *DimensionProto) error {
	return walk(b, func(f field) error {
		var err error
		switch f.num {
		case 1: // dim_value
			m.DimValue, err = f.i64()
		case 2: // dim_param
			m.DimParam, err = f.str()
		}
		return err
	})
}

//nolint:gocyclo,cyclop,funlen // Protobuf decoding is a field-by-field switch.
func decodeAttribute(b []byte, m *AttributeProto) error {
	return walk(b, func(f field) error {
		var err error
		switch f.num {
		case 1: // name
			m.Name, err = f.str()
		case 2: // f
			m.F, err = f.f32()
		case 3: // i
			m.I, err = f.i64()
		case 4: // s
			m.S, err = f.bytes()
		case 5: // t
			m.T, err = message(f, decodeTensor)
		case 6: // g
			m.G, err = message(f, decodeGraph)
		case 7: // floats
			var vs []float32
			if vs, err = f.float32s(); err == nil {
				m.Floats = append(m.Floats, vs...)
			}
		case 8: // ints
			var vs []int64
			if vs, err = f.int64s(); err == nil {
				m.Ints = append(m.Ints, vs...)
			}
		case 9: // strings
			var s []byte
			if s, err = f.bytes(); err == nil {
				m.Strings = append(m.Strings, s)
			}
		case 10: // tensors
			var t *TensorProto
			if t, err = message(f, decodeTensor); err == nil {
				m.Tensors = append(m.Tensors, *t)
			}
		case 11: // graphs
			var g *GraphProto
			if g, err = message(f, decodeGraph); err == nil {
				m.Graphs = append(m.Graphs, *g)
			}
		case 13: // doc_string
			m.DocString, err = f.str()
		case 20: // type
			m.Type, err = f.i32()
		}
		return err
	})
}

func decodeOperatorSetID(b []byte, m *OperatorSetID) error {
	return walk(b, func(f field) error {
		var err error
		switch f.num {
		case 1: // domain
			m.Domain, err = f.str()
		case 2: // version
			m.Version, err = f.i64()
		}
		return err
	})
}

func decodeStringStringEntry(b []byte, m *StringStringEntry) error {
	return walk(b, func(f field) error {
		var err error
		switch f.num {
		case 1: // key
			m.Key, err = f.str()
		case 2: // value
			m.Value, err = f.str()
		}
		return err
	})
}
