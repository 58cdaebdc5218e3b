package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/born-ml/onnxbackend/internal/engine/operators"
	"github.com/born-ml/onnxbackend/internal/logutil"
	"github.com/born-ml/onnxbackend/internal/onnx"
	"github.com/born-ml/onnxbackend/internal/tensor"
)

// ErrClosed is returned by a Net after Close.
var ErrClosed = errors.New("network is closed")

// Net is a loaded ONNX graph ready for inference. Its methods are safe for
// concurrent use; forward passes are serialized.
type Net struct {
	proto       *onnx.ModelProto
	registry    *operators.Registry
	logger      *slog.Logger
	weights     map[string]*tensor.Tensor
	inputNames  []string
	outputNames []string
	unconnected []string
	nodes       []*operators.Node
	opset       int64

	mu      sync.Mutex
	aliases map[string]string         // positional alias -> graph input
	bound   map[string]*tensor.Tensor // graph input -> value
	closed  bool
}

// InputNames returns the names of the graph inputs that are not initializers.
func (n *Net) InputNames() []string {
	return slices.Clone(n.inputNames)
}

// OutputNames returns the names of all graph outputs.
func (n *Net) OutputNames() []string {
	return slices.Clone(n.outputNames)
}

// UnconnectedOutputNames returns the graph outputs no node consumes, in
// graph order. These are the network's terminal results.
func (n *Net) UnconnectedOutputNames() []string {
	return slices.Clone(n.unconnected)
}

// OpsetVersion returns the default-domain opset version.
func (n *Net) OpsetVersion() int64 {
	return n.opset
}

// Metadata returns model metadata as key-value pairs.
func (n *Net) Metadata() map[string]string {
	meta := make(map[string]string)
	for _, prop := range n.proto.MetadataProps {
		meta[prop.Key] = prop.Value
	}
	meta["producer_name"] = n.proto.ProducerName
	meta["producer_version"] = n.proto.ProducerVersion
	meta["domain"] = n.proto.Domain
	return meta
}

// SetInputNames assigns positional aliases: names[i] refers to the i-th
// graph input. Earlier aliases are discarded.
func (n *Net) SetInputNames(names []string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return ErrClosed
	}
	if len(names) > len(n.inputNames) {
		return fmt.Errorf("%d input names given, network has %d inputs %v", len(names), len(n.inputNames), n.inputNames)
	}
	aliases := make(map[string]string, len(names))
	for i, name := range names {
		if _, dup := aliases[name]; dup {
			return fmt.Errorf("duplicate input name %q", name)
		}
		aliases[name] = n.inputNames[i]
	}
	n.aliases = aliases
	return nil
}

// SetInput binds t to an input, addressed by alias or by graph input name.
// An empty name addresses the first input.
func (n *Net) SetInput(t *tensor.Tensor, name string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return ErrClosed
	}
	if t == nil {
		return fmt.Errorf("input %q: nil tensor", name)
	}
	input, err := n.resolve(name)
	if err != nil {
		return err
	}
	if n.bound == nil {
		n.bound = make(map[string]*tensor.Tensor)
	}
	n.bound[input] = t
	return nil
}

func (n *Net) resolve(name string) (string, error) {
	if input, ok := n.aliases[name]; ok {
		return input, nil
	}
	if name == "" && len(n.inputNames) > 0 {
		return n.inputNames[0], nil
	}
	for _, input := range n.inputNames {
		if input == name {
			return input, nil
		}
	}
	return "", fmt.Errorf("unknown input %q (inputs %v)", name, n.inputNames)
}

// ForwardAndRetrieve runs the graph on the bound inputs and returns the
// values named in names, in order. Any value of the graph may be requested.
// Results are copies; they never share storage with the network's weights.
func (n *Net) ForwardAndRetrieve(names []string) ([]*tensor.Tensor, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil, ErrClosed
	}

	values, err := n.forward(n.bound)
	if err != nil {
		return nil, err
	}
	out := make([]*tensor.Tensor, len(names))
	for i, name := range names {
		t, ok := values[name]
		if !ok {
			return nil, fmt.Errorf("unknown output %q", name)
		}
		out[i] = t.Clone()
	}
	return out, nil
}

// Forward runs the graph with named inputs and returns every graph output.
// It ignores inputs bound with SetInput.
func (n *Net) Forward(inputs map[string]*tensor.Tensor) (map[string]*tensor.Tensor, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil, ErrClosed
	}

	values, err := n.forward(inputs)
	if err != nil {
		return nil, err
	}
	result := make(map[string]*tensor.Tensor, len(n.outputNames))
	for _, name := range n.outputNames {
		t, ok := values[name]
		if !ok {
			return nil, fmt.Errorf("missing output: %s", name)
		}
		result[name] = t.Clone()
	}
	return result, nil
}

// forward executes nodes in topological order and returns every value.
func (n *Net) forward(inputs map[string]*tensor.Tensor) (map[string]*tensor.Tensor, error) {
	values := maps.Clone(n.weights)
	for _, name := range n.inputNames {
		t, ok := inputs[name]
		if !ok || t == nil {
			return nil, fmt.Errorf("missing input: %s", name)
		}
		values[name] = t
	}

	ctx := &operators.Context{Opset: n.opset, Logger: n.logger}
	for _, node := range n.nodes {
		nodeInputs := make([]*tensor.Tensor, len(node.Inputs))
		for i, name := range node.Inputs {
			if name == "" {
				// Optional input not provided.
				continue
			}
			t, ok := values[name]
			if !ok {
				return nil, fmt.Errorf("node %s: missing input %s", node.Name, name)
			}
			nodeInputs[i] = t
		}

		logutil.Trace(n.logger, "executing node", "name", node.Name, "op", node.OpType)
		outputs, err := n.registry.Execute(ctx, node, nodeInputs)
		if err != nil {
			return nil, fmt.Errorf("node %s (%s): %w", node.Name, node.OpType, err)
		}
		for i, name := range node.Outputs {
			if i < len(outputs) && name != "" {
				values[name] = outputs[i]
			}
		}
	}
	return values, nil
}

// Close releases the network's tensors. Further calls fail with ErrClosed.
func (n *Net) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
	n.weights = nil
	n.bound = nil
	n.aliases = nil
	return nil
}
