// Package checker validates serialized ONNX models before they are loaded.
//
// It implements the structural subset of the reference ONNX checker: version
// fields, opset imports, graph well-formedness (SSA naming, topological node
// order, defined inputs and outputs) and initializer consistency. Operator
// schemas are not checked; unknown operators surface when the engine loads
// the network.
package checker

import (
	"fmt"
	"maps"

	"github.com/born-ml/onnxbackend/internal/onnx"
	"github.com/born-ml/onnxbackend/internal/tensor"
)

// Version limits accepted by the checker.
const (
	MaxIRVersion    = 10
	MaxOpsetVersion = 21
)

// Check parses data as an ONNX model and validates it. It returns nil or a
// *ValidationError.
func Check(data []byte) error {
	model, err := onnx.Parse(data)
	if err != nil {
		return &ValidationError{Err: err}
	}
	return CheckModel(model)
}

// CheckModel validates an already parsed model.
func CheckModel(model *onnx.ModelProto) error {
	c := &checker{}
	c.checkModel(model)
	if len(c.issues) > 0 {
		return &ValidationError{Issues: c.issues}
	}
	return nil
}

type checker struct {
	issues  []Issue
	domains map[string]int64
}

func (c *checker) addf(path, format string, args ...any) {
	c.issues = append(c.issues, Issue{Path: path, Message: fmt.Sprintf(format, args...)})
}

func normalizeDomain(domain string) string {
	if domain == "ai.onnx" {
		return ""
	}
	return domain
}

func (c *checker) checkModel(m *onnx.ModelProto) {
	switch {
	case m.IRVersion <= 0:
		c.addf("model", "ir_version is not set")
	case m.IRVersion > MaxIRVersion:
		c.addf("model", "ir_version %d is newer than the supported %d", m.IRVersion, MaxIRVersion)
	}

	c.domains = make(map[string]int64, len(m.OpsetImport))
	if len(m.OpsetImport) == 0 {
		c.addf("model", "opset_import is empty")
	}
	for i, opset := range m.OpsetImport {
		path := fmt.Sprintf("model.opset_import[%d]", i)
		domain := normalizeDomain(opset.Domain)
		if _, dup := c.domains[domain]; dup {
			c.addf(path, "domain %q is imported more than once", opset.Domain)
			continue
		}
		c.domains[domain] = opset.Version
		switch {
		case opset.Version < 1:
			c.addf(path, "domain %q has invalid version %d", opset.Domain, opset.Version)
		case domain == "" && opset.Version > MaxOpsetVersion:
			c.addf(path, "opset version %d is newer than the supported %d", opset.Version, MaxOpsetVersion)
		}
	}

	if m.Graph == nil {
		c.addf("model", "graph is missing")
		return
	}
	if m.Graph.Name == "" {
		c.addf("graph", "name is empty")
	}
	c.checkGraph("graph", m.Graph, nil)
}

// checkGraph validates g. outer holds names visible from an enclosing graph
// (for subgraphs of If, Loop and Scan).
//
//nolint:gocognit,gocyclo,cyclop,funlen // Mirrors the checker's per-rule structure.
func (c *checker) checkGraph(path string, g *onnx.GraphProto, outer map[string]bool) {
	defined := make(map[string]bool)
	maps.Copy(defined, outer)
	local := make(map[string]bool)

	for i := range g.Initializers {
		init := &g.Initializers[i]
		p := fmt.Sprintf("%s.initializer[%d]", path, i)
		if init.Name == "" {
			c.addf(p, "name is empty")
			continue
		}
		if local[init.Name] {
			c.addf(p, "initializer %q is defined more than once", init.Name)
		}
		local[init.Name] = true
		defined[init.Name] = true
		c.checkTensor(p, init)
	}

	inputs := make(map[string]bool, len(g.Inputs))
	for i := range g.Inputs {
		in := &g.Inputs[i]
		p := fmt.Sprintf("%s.input[%d]", path, i)
		c.checkValueInfo(p, in)
		if in.Name == "" {
			continue
		}
		if inputs[in.Name] {
			c.addf(p, "input %q is declared more than once", in.Name)
		}
		inputs[in.Name] = true
		local[in.Name] = true
		defined[in.Name] = true
	}

	for i := range g.Nodes {
		node := &g.Nodes[i]
		p := fmt.Sprintf("%s.node[%d](%s)", path, i, node.OpType)
		if node.OpType == "" {
			c.addf(p, "op_type is empty")
		}
		if _, ok := c.domains[normalizeDomain(node.Domain)]; !ok {
			c.addf(p, "no opset import for domain %q", node.Domain)
		}
		for _, in := range node.Inputs {
			if in != "" && !defined[in] {
				c.addf(p, "input %q is not produced by an earlier node, a graph input or an initializer", in)
			}
		}

		attrs := make(map[string]bool, len(node.Attributes))
		for j := range node.Attributes {
			attr := &node.Attributes[j]
			ap := fmt.Sprintf("%s.attribute[%d]", p, j)
			if attr.Name == "" {
				c.addf(ap, "name is empty")
			} else if attrs[attr.Name] {
				c.addf(ap, "attribute %q is set more than once", attr.Name)
			}
			attrs[attr.Name] = true
			if attr.T != nil {
				c.checkTensor(ap, attr.T)
			}
			if attr.G != nil {
				c.checkGraph(ap+".g", attr.G, defined)
			}
			for k := range attr.Graphs {
				c.checkGraph(fmt.Sprintf("%s.graphs[%d]", ap, k), &attr.Graphs[k], defined)
			}
		}

		for _, out := range node.Outputs {
			if out == "" {
				continue
			}
			if local[out] {
				c.addf(p, "output %q is already defined in this graph", out)
			}
			local[out] = true
			defined[out] = true
		}
	}

	for i := range g.Outputs {
		out := &g.Outputs[i]
		p := fmt.Sprintf("%s.output[%d]", path, i)
		c.checkValueInfo(p, out)
		if out.Name != "" && !defined[out.Name] {
			c.addf(p, "output %q is never produced", out.Name)
		}
	}
}

func (c *checker) checkValueInfo(path string, vi *onnx.ValueInfoProto) {
	if vi.Name == "" {
		c.addf(path, "name is empty")
	}
	if vi.Type == nil {
		c.addf(path, "type of %q is missing", vi.Name)
		return
	}
	// Sequence, map and optional types decode without a tensor type.
	if vi.Type.TensorType != nil && vi.Type.TensorType.ElemType == onnx.TensorProtoUndefined {
		c.addf(path, "elem_type of %q is undefined", vi.Name)
	}
}

//nolint:gocyclo,cyclop // One case per typed data field.
func (c *checker) checkTensor(path string, t *onnx.TensorProto) {
	if t.DataType == onnx.TensorProtoUndefined {
		c.addf(path, "data_type of %q is undefined", t.Name)
		return
	}
	for _, d := range t.Dims {
		if d < 0 {
			c.addf(path, "tensor %q has negative dimension %d", t.Name, d)
			return
		}
	}
	count, ok := tensor.CheckedNumElements(t.Dims)
	if !ok {
		c.addf(path, "tensor %q element count overflows: dims %v exceed %d elements", t.Name, t.Dims, tensor.MaxElements)
		return
	}
	n := int64(count)

	if t.RawData != nil {
		if t.DataType == onnx.TensorProtoString {
			c.addf(path, "STRING tensor %q cannot use raw_data", t.Name)
			return
		}
		if want := n * int64(onnx.ElemSize(t.DataType)); int64(len(t.RawData)) != want {
			c.addf(path, "tensor %q raw_data has %d bytes, expected %d", t.Name, len(t.RawData), want)
		}
		return
	}

	var got int
	switch t.DataType {
	case onnx.TensorProtoFloat:
		got = len(t.FloatData)
	case onnx.TensorProtoComplex64:
		got = len(t.FloatData) / 2
	case onnx.TensorProtoDouble:
		got = len(t.DoubleData)
	case onnx.TensorProtoComplex128:
		got = len(t.DoubleData) / 2
	case onnx.TensorProtoInt64:
		got = len(t.Int64Data)
	case onnx.TensorProtoUint32, onnx.TensorProtoUint64:
		got = len(t.Uint64Data)
	case onnx.TensorProtoString:
		got = len(t.StringData)
	default:
		got = len(t.Int32Data)
	}
	if int64(got) != n {
		c.addf(path, "tensor %q has %d elements, expected %d for dims %v", t.Name, got, n, t.Dims)
	}
}
