package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/born-ml/onnxbackend/onnx"
)

func newOpsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ops",
		Short: "List supported operators",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			for _, op := range onnx.ListSupportedOps() {
				fmt.Fprintln(cmd.OutOrStdout(), op)
			}
		},
	}
}
