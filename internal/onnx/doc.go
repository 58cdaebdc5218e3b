// Package onnx reads and writes ONNX models and tensors.
//
// ONNX (Open Neural Network Exchange) is an open format for representing deep learning models.
// This package maps the subset of onnx.proto the backend needs onto plain Go structs and
// converts between the protobuf wire format and those structs using protowire.
//
// Key components:
//   - ModelProto: Top-level ONNX model structure with metadata and graph
//   - GraphProto: Computation graph with nodes, inputs, outputs, and initializers
//   - NodeProto: Single operation in the graph (e.g., Conv, MatMul, Relu)
//   - TensorProto: Weight/initializer tensor with data and shape
//   - ValueInfoProto: Input/output tensor type information
//
// Parse and Marshal convert whole models; ParseTensor, MarshalTensor, ReadTensorFile and
// WriteTensorFile handle the standalone TensorProto files used by ONNX test data sets.
// TensorFromProto and TensorToProto convert to and from tensor.Tensor.
//
// Example usage:
//
//	model, err := onnx.ParseFile("resnet50.onnx")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Graph: %s with %d nodes\n", model.Graph.Name, len(model.Graph.Nodes))
package onnx
