package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/born-ml/onnxbackend/backend"
	"github.com/born-ml/onnxbackend/internal/onnx"
	"github.com/born-ml/onnxbackend/internal/tensor"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run MODEL INPUT.pb...",
		Short: "Run a model on TensorProto inputs",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runHandler,
	}
	cmd.Flags().String("out", "", "Write outputs as output_K.pb into this directory")
	cmd.Flags().String("device", string(backend.CPU), "Device name passed to the backend")
	return cmd
}

func runHandler(cmd *cobra.Command, args []string) error {
	outDir, _ := cmd.Flags().GetString("out")
	device, _ := cmd.Flags().GetString("device")

	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	inputs := make([]*tensor.Tensor, 0, len(args)-1)
	for _, path := range args[1:] {
		_, t, err := onnx.ReadTensorFile(path)
		if err != nil {
			return err
		}
		inputs = append(inputs, t)
	}

	rep, err := backend.Prepare(onnx.RawModel(data), backend.Device(device))
	if err != nil {
		return err
	}
	defer func() {
		if err := rep.Close(); err != nil {
			slog.Warn("failed to close network", "error", err)
		}
	}()

	outputs, err := rep.Run(inputs...)
	if err != nil {
		return err
	}
	names := rep.OutputNames()
	for i, out := range outputs {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%v\n", names[i], out.DType(), out.Shape())
		if outDir == "" {
			continue
		}
		path := filepath.Join(outDir, fmt.Sprintf("output_%d.pb", i))
		if err := onnx.WriteTensorFile(path, names[i], out); err != nil {
			return err
		}
		slog.Debug("wrote output", "path", path)
	}
	return nil
}
