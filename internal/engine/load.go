package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/born-ml/onnxbackend/internal/engine/operators"
	"github.com/born-ml/onnxbackend/internal/onnx"
	"github.com/born-ml/onnxbackend/internal/tensor"
)

// FormatONNX is the only serialization format LoadNetwork accepts.
const FormatONNX = "onnx"

// Errors returned by LoadNetwork.
var (
	ErrUnsupportedFormat   = errors.New("unsupported model format")
	ErrUnsupportedOperator = errors.New("unsupported operator")
	ErrCycle               = errors.New("graph contains a cycle")
)

type options struct {
	logger    *slog.Logger
	registry  *operators.Registry
	strictOps bool
}

// Option configures LoadNetwork.
type Option func(*options)

// WithLogger sets the logger used for load and execution diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRegistry replaces the default operator registry, e.g. to add custom
// operators.
func WithRegistry(r *operators.Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// WithStrictOps controls whether loading fails when the graph uses an
// operator missing from the registry (default true). When disabled the
// failure is deferred to the first forward pass reaching that node.
func WithStrictOps(strict bool) Option {
	return func(o *options) {
		o.strictOps = strict
	}
}

// LoadNetwork loads a serialized model. format must be "onnx".
func LoadNetwork(format string, data []byte, opts ...Option) (*Net, error) {
	if format != FormatONNX {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	proto, err := onnx.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ONNX data: %w", err)
	}
	return FromProto(proto, opts...)
}

// LoadFile loads an ONNX model from a file.
func LoadFile(path string, opts ...Option) (*Net, error) {
	proto, err := onnx.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ONNX file: %w", err)
	}
	return FromProto(proto, opts...)
}

// FromProto builds a network from an already parsed model.
func FromProto(proto *onnx.ModelProto, opts ...Option) (*Net, error) {
	o := options{strictOps: true}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.registry == nil {
		o.registry = operators.NewRegistry()
	}

	if proto.Graph == nil {
		return nil, fmt.Errorf("model has no graph")
	}
	if o.strictOps {
		if err := validateOperators(proto.Graph, o.registry); err != nil {
			return nil, err
		}
	}

	net := &Net{
		proto:    proto,
		registry: o.registry,
		logger:   o.logger,
		opset:    proto.OpsetVersion(),
	}
	if err := net.compile(); err != nil {
		return nil, fmt.Errorf("failed to compile model: %w", err)
	}

	net.logger.Debug("network loaded",
		"graph", proto.Graph.Name,
		"opset", net.opset,
		"nodes", len(net.nodes),
		"initializers", len(net.weights),
		"inputs", net.inputNames,
		"outputs", net.outputNames)
	return net, nil
}

// validateOperators checks that all operators are supported.
func validateOperators(graph *onnx.GraphProto, registry *operators.Registry) error {
	var unsupported []string
	seen := make(map[string]bool)
	for i := range graph.Nodes {
		op := graph.Nodes[i].OpType
		if _, ok := registry.Get(op); ok || seen[op] {
			continue
		}
		seen[op] = true
		unsupported = append(unsupported, op)
	}
	if len(unsupported) > 0 {
		return fmt.Errorf("%w: %v", ErrUnsupportedOperator, unsupported)
	}
	return nil
}

// compile decodes initializers and orders nodes for execution.
func (n *Net) compile() error {
	graph := n.proto.Graph

	n.weights = make(map[string]*tensor.Tensor, len(graph.Initializers))
	for i := range graph.Initializers {
		init := &graph.Initializers[i]
		t, err := onnx.TensorFromProto(init)
		if err != nil {
			return fmt.Errorf("failed to load initializer %s: %w", init.Name, err)
		}
		n.weights[init.Name] = t
	}

	// Inputs are graph inputs minus initializers (IR < 4 lists weights as
	// inputs too).
	for i := range graph.Inputs {
		if _, ok := n.weights[graph.Inputs[i].Name]; !ok {
			n.inputNames = append(n.inputNames, graph.Inputs[i].Name)
		}
	}

	consumed := make(map[string]bool)
	for i := range graph.Nodes {
		for _, in := range graph.Nodes[i].Inputs {
			consumed[in] = true
		}
	}
	for i := range graph.Outputs {
		name := graph.Outputs[i].Name
		n.outputNames = append(n.outputNames, name)
		if !consumed[name] {
			n.unconnected = append(n.unconnected, name)
		}
	}

	order, err := topologicalSort(graph.Nodes)
	if err != nil {
		return err
	}
	n.nodes = make([]*operators.Node, len(order))
	for i, idx := range order {
		node, err := convertNode(&graph.Nodes[idx])
		if err != nil {
			return err
		}
		n.nodes[i] = node
	}
	return nil
}

// convertNode converts a NodeProto to an operators.Node, decoding tensor
// attributes once at load time.
func convertNode(proto *onnx.NodeProto) (*operators.Node, error) {
	attrs := make([]operators.Attribute, len(proto.Attributes))
	for i := range proto.Attributes {
		attr := &proto.Attributes[i]
		attrs[i] = operators.Attribute{
			Name:    attr.Name,
			Type:    attr.Type,
			F:       attr.F,
			I:       attr.I,
			S:       attr.S,
			Floats:  attr.Floats,
			Ints:    attr.Ints,
			Strings: attr.Strings,
		}
		if attr.T != nil {
			t, err := onnx.TensorFromProto(attr.T)
			if err != nil {
				return nil, fmt.Errorf("node %s: attribute %s: %w", proto.Name, attr.Name, err)
			}
			attrs[i].T = t
		}
	}
	return &operators.Node{
		Name:       proto.Name,
		OpType:     proto.OpType,
		Domain:     proto.Domain,
		Inputs:     proto.Inputs,
		Outputs:    proto.Outputs,
		Attributes: attrs,
	}, nil
}

// topologicalSort returns node indices in execution order: every node
// follows the producers of its inputs. Ties keep the original order.
func topologicalSort(nodes []onnx.NodeProto) ([]int, error) {
	producer := make(map[string]int)
	for i := range nodes {
		for _, output := range nodes[i].Outputs {
			if output != "" {
				producer[output] = i
			}
		}
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make([]int, len(nodes))
	order := make([]int, 0, len(nodes))

	var visit func(i int) error
	visit = func(i int) error {
		switch state[i] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("%w at node %q (%s)", ErrCycle, nodes[i].Name, nodes[i].OpType)
		}
		state[i] = visiting
		for _, input := range nodes[i].Inputs {
			if dep, ok := producer[input]; ok {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		state[i] = done
		order = append(order, i)
		return nil
	}

	for i := range nodes {
		if err := visit(i); err != nil {
			return nil, err
		}
	}
	return order, nil
}
