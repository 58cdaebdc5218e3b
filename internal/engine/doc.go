// Package engine is the in-tree ONNX inference engine behind the backend.
//
// LoadNetwork parses a serialized model, decodes its initializers, orders its
// nodes topologically and returns a Net. A Net binds inputs by name (or by
// positional alias set with SetInputNames) and evaluates the graph on the
// CPU with the kernels in package operators.
//
// Example:
//
//	net, err := engine.LoadNetwork("onnx", data)
//	if err != nil {
//	    return err
//	}
//	defer net.Close()
//	_ = net.SetInputNames([]string{"0"})
//	_ = net.SetInput(x, "0")
//	outs, err := net.ForwardAndRetrieve(net.UnconnectedOutputNames())
package engine
