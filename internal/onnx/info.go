package onnx

import (
	"slices"
	"strconv"
)

// Marshaler is implemented by model descriptors that can produce their ONNX
// protobuf serialization.
type Marshaler interface {
	Marshal() ([]byte, error)
}

// Marshal serializes the model. It makes *ModelProto a Marshaler.
func (m *ModelProto) Marshal() ([]byte, error) {
	return Marshal(m)
}

// RawModel is an already serialized model descriptor.
type RawModel []byte

// Marshal returns the bytes unchanged.
func (r RawModel) Marshal() ([]byte, error) {
	return r, nil
}

// OpsetVersion returns the version imported for the default ("" or
// "ai.onnx") domain, or 0 when none is imported.
func (m *ModelProto) OpsetVersion() int64 {
	for _, opset := range m.OpsetImport {
		if opset.Domain == "" || opset.Domain == "ai.onnx" {
			return opset.Version
		}
	}
	return 0
}

// ModelInfo contains basic information about an ONNX model without loading it.
type ModelInfo struct {
	IRVersion       int64
	OpsetVersion    int64
	ProducerName    string
	ProducerVersion string
	GraphName       string
	Inputs          []ValueSummary
	Outputs         []ValueSummary
	NodeCount       int
	WeightCount     int
	Operators       []string // distinct op types, sorted
}

// ValueSummary describes a graph input or output.
type ValueSummary struct {
	Name     string
	DataType string
	Shape    []string // dim values or symbolic dim params; "?" when unknown
}

// GetModelInfo extracts basic info from an ONNX file.
func GetModelInfo(path string) (*ModelInfo, error) {
	proto, err := ParseFile(path)
	if err != nil {
		return nil, err
	}
	return Summarize(proto), nil
}

// Summarize extracts basic info from a parsed model. Graph inputs that are
// also initializers are omitted from Inputs.
func Summarize(proto *ModelProto) *ModelInfo {
	info := &ModelInfo{
		IRVersion:       proto.IRVersion,
		OpsetVersion:    proto.OpsetVersion(),
		ProducerName:    proto.ProducerName,
		ProducerVersion: proto.ProducerVersion,
	}

	graph := proto.Graph
	if graph == nil {
		return info
	}
	info.GraphName = graph.Name

	initNames := make(map[string]bool, len(graph.Initializers))
	for i := range graph.Initializers {
		initNames[graph.Initializers[i].Name] = true
	}
	for i := range graph.Inputs {
		if !initNames[graph.Inputs[i].Name] {
			info.Inputs = append(info.Inputs, summarizeValue(&graph.Inputs[i]))
		}
	}
	for i := range graph.Outputs {
		info.Outputs = append(info.Outputs, summarizeValue(&graph.Outputs[i]))
	}

	info.NodeCount = len(graph.Nodes)
	info.WeightCount = len(graph.Initializers)

	seen := make(map[string]bool)
	for i := range graph.Nodes {
		op := graph.Nodes[i].OpType
		if !seen[op] {
			seen[op] = true
			info.Operators = append(info.Operators, op)
		}
	}
	slices.Sort(info.Operators)

	return info
}

func summarizeValue(vi *ValueInfoProto) ValueSummary {
	s := ValueSummary{Name: vi.Name, DataType: DataTypeName(TensorProtoUndefined)}
	if vi.Type == nil || vi.Type.TensorType == nil {
		return s
	}
	tt := vi.Type.TensorType
	s.DataType = DataTypeName(tt.ElemType)
	if tt.Shape == nil {
		return s
	}
	s.Shape = make([]string, len(tt.Shape.Dims))
	for i, dim := range tt.Shape.Dims {
		switch {
		case dim.DimParam != "":
			s.Shape[i] = dim.DimParam
		case dim.DimValue > 0:
			s.Shape[i] = strconv.FormatInt(dim.DimValue, 10)
		default:
			s.Shape[i] = "?"
		}
	}
	return s
}
