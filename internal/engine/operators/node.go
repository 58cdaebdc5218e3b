package operators

import (
	"fmt"

	"github.com/born-ml/onnxbackend/internal/tensor"
)

// Node is the engine's view of an ONNX node: names, attributes and any
// tensor attribute already decoded.
type Node struct {
	Name       string      // Node name (optional)
	OpType     string      // Operation type (e.g., "MatMul", "Relu")
	Domain     string      // Operator domain (empty for default)
	Inputs     []string    // Input tensor names; "" marks an omitted optional input
	Outputs    []string    // Output tensor names
	Attributes []Attribute // Operation attributes
}

// Attribute is a decoded node attribute.
type Attribute struct {
	Name    string         // Attribute name
	Type    int32          // ONNX attribute type
	F       float32        // FLOAT value
	I       int64          // INT value
	S       []byte         // STRING value
	T       *tensor.Tensor // TENSOR value
	Floats  []float32      // FLOATS array
	Ints    []int64        // INTS array
	Strings [][]byte       // STRINGS array
}

// Attr returns the named attribute, or nil.
func (n *Node) Attr(name string) *Attribute {
	for i := range n.Attributes {
		if n.Attributes[i].Name == name {
			return &n.Attributes[i]
		}
	}
	return nil
}

// GetAttrInt returns an integer attribute or default value.
func GetAttrInt(node *Node, name string, defaultVal int64) int64 {
	if a := node.Attr(name); a != nil {
		return a.I
	}
	return defaultVal
}

// GetAttrInts returns an integer array attribute.
func GetAttrInts(node *Node, name string) []int64 {
	if a := node.Attr(name); a != nil {
		return a.Ints
	}
	return nil
}

// GetAttrFloat returns a float attribute or default value.
func GetAttrFloat(node *Node, name string, defaultVal float32) float32 {
	if a := node.Attr(name); a != nil {
		return a.F
	}
	return defaultVal
}

// GetAttrString returns a string attribute or default value.
func GetAttrString(node *Node, name, defaultVal string) string {
	if a := node.Attr(name); a != nil {
		return string(a.S)
	}
	return defaultVal
}

// checkInputs verifies the number of inputs and that the required ones
// (the first minimum) are present.
func checkInputs(node *Node, inputs []*tensor.Tensor, minimum, maximum int) error {
	if len(inputs) < minimum || len(inputs) > maximum {
		if minimum == maximum {
			return fmt.Errorf("%s requires %d inputs, got %d", node.OpType, minimum, len(inputs))
		}
		return fmt.Errorf("%s requires %d to %d inputs, got %d", node.OpType, minimum, maximum, len(inputs))
	}
	for i := range minimum {
		if inputs[i] == nil {
			return fmt.Errorf("%s: required input %d is missing", node.OpType, i)
		}
	}
	return nil
}

// optionalInput returns inputs[i] when present.
func optionalInput(inputs []*tensor.Tensor, i int) *tensor.Tensor {
	if i < len(inputs) {
		return inputs[i]
	}
	return nil
}

// axesOf reads the axes operand: the optional input at index i for newer
// opsets, otherwise the "axes" attribute.
func axesOf(node *Node, inputs []*tensor.Tensor, i int) ([]int64, error) {
	if t := optionalInput(inputs, i); t != nil {
		axes, err := t.Int64s()
		if err != nil {
			return nil, fmt.Errorf("%s: axes: %w", node.OpType, err)
		}
		return axes, nil
	}
	return GetAttrInts(node, "axes"), nil
}

func one(t *tensor.Tensor) []*tensor.Tensor {
	return []*tensor.Tensor{t}
}
