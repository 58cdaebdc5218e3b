package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/born-ml/onnxbackend/internal/engine/operators"
	"github.com/born-ml/onnxbackend/internal/onnx"
)

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info MODEL",
		Short: "Show model inputs, outputs and operators",
		Args:  cobra.ExactArgs(1),
		RunE:  infoHandler,
	}
}

func infoHandler(cmd *cobra.Command, args []string) error {
	info, err := onnx.GetModelInfo(args[0])
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()

	renderTable(w, "Model", [][]string{
		{"", "graph", info.GraphName},
		{"", "ir_version", strconv.FormatInt(info.IRVersion, 10)},
		{"", "opset", strconv.FormatInt(info.OpsetVersion, 10)},
		{"", "producer", strings.TrimSpace(info.ProducerName + " " + info.ProducerVersion)},
		{"", "nodes", strconv.Itoa(info.NodeCount)},
		{"", "initializers", strconv.Itoa(info.WeightCount)},
	})
	renderTable(w, "Inputs", valueRows(info.Inputs))
	renderTable(w, "Outputs", valueRows(info.Outputs))

	registry := operators.NewRegistry()
	var ops [][]string
	for _, op := range info.Operators {
		supported := "yes"
		if _, ok := registry.Get(op); !ok {
			supported = "no"
		}
		ops = append(ops, []string{"", op, supported})
	}
	renderTable(w, "Operators", ops)
	return nil
}

func valueRows(values []onnx.ValueSummary) [][]string {
	rows := make([][]string, len(values))
	for i, v := range values {
		rows[i] = []string{"", v.Name, v.DataType, "[" + strings.Join(v.Shape, ", ") + "]"}
	}
	return rows
}

func renderTable(w io.Writer, header string, rows [][]string) {
	if len(rows) == 0 {
		return
	}
	fmt.Fprintf(w, "  %s\n", header)
	table := tablewriter.NewWriter(w)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(rows)
	table.Render()
	fmt.Fprintln(w)
}
