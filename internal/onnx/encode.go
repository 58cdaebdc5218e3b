package onnx

import (
	"errors"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Marshal serializes a model to the ONNX protobuf wire format.
//
// Field layout follows onnx.proto: tensor data fields are packed, dims and
// attribute lists are not.
func Marshal(m *ModelProto) ([]byte, error) {
	if m == nil {
		return nil, errors.New("nil model")
	}
	return appendModel(nil, m), nil
}

// MarshalTensor serializes a single TensorProto.
func MarshalTensor(t *TensorProto) ([]byte, error) {
	if t == nil {
		return nil, errors.New("nil tensor")
	}
	return appendTensor(nil, t), nil
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendRawBytes(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendVarint(b []byte, num protowire.Number, v int64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v)) //nolint:gosec // G115: two's complement encoding.
}

// appendMessage appends an embedded message produced by enc.
func appendMessage(b []byte, num protowire.Number, enc func([]byte) []byte) []byte {
	return appendRawBytes(b, num, enc(nil))
}

func appendModel(b []byte, m *ModelProto) []byte {
	if m.IRVersion != 0 {
		b = appendVarint(b, 1, m.IRVersion)
	}
	b = appendString(b, 2, m.ProducerName)
	b = appendString(b, 3, m.ProducerVersion)
	b = appendString(b, 4, m.Domain)
	if m.ModelVersion != 0 {
		b = appendVarint(b, 5, m.ModelVersion)
	}
	b = appendString(b, 6, m.DocString)
	if m.Graph != nil {
		b = appendMessage(b, 7, func(b []byte) []byte { return appendGraph(b, m.Graph) })
	}
	for i := range m.OpsetImport {
		opset := &m.OpsetImport[i]
		b = appendMessage(b, 8, func(b []byte) []byte {
			b = appendString(b, 1, opset.Domain)
			return appendVarint(b, 2, opset.Version)
		})
	}
	for i := range m.MetadataProps {
		entry := &m.MetadataProps[i]
		b = appendMessage(b, 14, func(b []byte) []byte {
			b = appendString(b, 1, entry.Key)
			return appendString(b, 2, entry.Value)
		})
	}
	return b
}

func appendGraph(b []byte, g *GraphProto) []byte {
	for i := range g.Nodes {
		node := &g.Nodes[i]
		b = appendMessage(b, 1, func(b []byte) []byte { return appendNode(b, node) })
	}
	b = appendString(b, 2, g.Name)
	for i := range g.Initializers {
		t := &g.Initializers[i]
		b = appendMessage(b, 5, func(b []byte) []byte { return appendTensor(b, t) })
	}
	b = appendString(b, 10, g.DocString)
	b = appendValueInfos(b, 11, g.Inputs)
	b = appendValueInfos(b, 12, g.Outputs)
	b = appendValueInfos(b, 13, g.ValueInfo)
	return b
}

func appendNode(b []byte, n *NodeProto) []byte {
	// Empty input names are meaningful (omitted optional inputs) and kept.
	for _, in := range n.Inputs {
		b = appendRawBytes(b, 1, []byte(in))
	}
	for _, out := range n.Outputs {
		b = appendRawBytes(b, 2, []byte(out))
	}
	b = appendString(b, 3, n.Name)
	b = appendString(b, 4, n.OpType)
	for i := range n.Attributes {
		attr := &n.Attributes[i]
		b = appendMessage(b, 5, func(b []byte) []byte { return appendAttribute(b, attr) })
	}
	b = appendString(b, 6, n.DocString)
	b = appendString(b, 7, n.Domain)
	return b
}

//nolint:gocyclo,cyclop // One branch per TensorProto data field.
func appendTensor(b []byte, t *TensorProto) []byte {
	for _, d := range t.Dims {
		b = appendVarint(b, 1, d)
	}
	b = appendVarint(b, 2, int64(t.DataType))
	if len(t.FloatData) > 0 {
		var packed []byte
		for _, v := range t.FloatData {
			packed = protowire.AppendFixed32(packed, math.Float32bits(v))
		}
		b = appendRawBytes(b, 4, packed)
	}
	if len(t.Int32Data) > 0 {
		var packed []byte
		for _, v := range t.Int32Data {
			packed = protowire.AppendVarint(packed, uint64(int64(v))) //nolint:gosec // G115: sign extension.
		}
		b = appendRawBytes(b, 5, packed)
	}
	for _, s := range t.StringData {
		b = appendRawBytes(b, 6, s)
	}
	if len(t.Int64Data) > 0 {
		var packed []byte
		for _, v := range t.Int64Data {
			packed = protowire.AppendVarint(packed, uint64(v)) //nolint:gosec // G115: two's complement.
		}
		b = appendRawBytes(b, 7, packed)
	}
	b = appendString(b, 8, t.Name)
	if t.RawData != nil {
		b = appendRawBytes(b, 9, t.RawData)
	}
	if len(t.DoubleData) > 0 {
		var packed []byte
		for _, v := range t.DoubleData {
			packed = protowire.AppendFixed64(packed, math.Float64bits(v))
		}
		b = appendRawBytes(b, 10, packed)
	}
	if len(t.Uint64Data) > 0 {
		var packed []byte
		for _, v := range t.Uint64Data {
			packed = protowire.AppendVarint(packed, v)
		}
		b = appendRawBytes(b, 11, packed)
	}
	b = appendString(b, 12, t.DocString)
	return b
}

func appendValueInfos(b []byte, num protowire.Number, infos []ValueInfoProto) []byte {
	for i := range infos {
		vi := &infos[i]
		b = appendMessage(b, num, func(b []byte) []byte { return appendValueInfo(b, vi) })
	}
	return b
}

func appendValueInfo(b []byte, vi *ValueInfoProto) []byte {
	b = appendString(b, 1, vi.Name)
	if vi.Type != nil && vi.Type.TensorType != nil {
		tt := vi.Type.TensorType
		b = appendMessage(b, 2, func(b []byte) []byte {
			return appendMessage(b, 1, func(b []byte) []byte { return appendTensorType(b, tt) })
		})
	}
	b = appendString(b, 3, vi.DocString)
	return b
}

func appendTensorType(b []byte, tt *TensorTypeProto) []byte {
	b = appendVarint(b, 1, int64(tt.ElemType))
	if tt.Shape != nil {
		b = appendMessage(b, 2, func(b []byte) []byte {
			for i := range tt.Shape.Dims {
				dim := &tt.Shape.Dims[i]
				b = appendMessage(b, 1, func(b []byte) []byte {
					if dim.DimParam != "" {
						return appendString(b, 2, dim.DimParam)
					}
					return appendVarint(b, 1, dim.DimValue)
				})
			}
			return b
		})
	}
	return b
}

//nolint:gocyclo,cyclop // One branch per attribute value field.
func appendAttribute(b []byte, a *AttributeProto) []byte {
	b = appendString(b, 1, a.Name)
	switch a.Type {
	case AttributeProtoFloat:
		b = protowire.AppendTag(b, 2, protowire.Fixed32Type)
		b = protowire.AppendFixed32(b, math.Float32bits(a.F))
	case AttributeProtoInt:
		b = appendVarint(b, 3, a.I)
	case AttributeProtoString:
		b = appendRawBytes(b, 4, a.S)
	case AttributeProtoTensor:
		if a.T != nil {
			b = appendMessage(b, 5, func(b []byte) []byte { return appendTensor(b, a.T) })
		}
	case AttributeProtoGraph:
		if a.G != nil {
			b = appendMessage(b, 6, func(b []byte) []byte { return appendGraph(b, a.G) })
		}
	}
	for _, v := range a.Floats {
		b = protowire.AppendTag(b, 7, protowire.Fixed32Type)
		b = protowire.AppendFixed32(b, math.Float32bits(v))
	}
	for _, v := range a.Ints {
		b = appendVarint(b, 8, v)
	}
	for _, s := range a.Strings {
		b = appendRawBytes(b, 9, s)
	}
	for i := range a.Tensors {
		t := &a.Tensors[i]
		b = appendMessage(b, 10, func(b []byte) []byte { return appendTensor(b, t) })
	}
	for i := range a.Graphs {
		g := &a.Graphs[i]
		b = appendMessage(b, 11, func(b []byte) []byte { return appendGraph(b, g) })
	}
	b = appendString(b, 13, a.DocString)
	if a.Type != AttributeProtoUndefined {
		b = appendVarint(b, 20, int64(a.Type))
	}
	return b
}
