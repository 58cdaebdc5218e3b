package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/born-ml/onnxbackend/backend"
	"github.com/born-ml/onnxbackend/internal/conformance"
	"github.com/born-ml/onnxbackend/internal/envconfig"
)

func newTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test [DIR...]",
		Short: "Run ONNX backend test cases",
		Long:  "Run every test case (a directory with model.onnx and test_data_set_N) found under DIR. Without arguments ONNXBACKEND_TESTDATA is used.",
		RunE:  testHandler,
	}
	cmd.Flags().String("config", "", "YAML file with rtol, atol, parallel and exclude")
	cmd.Flags().Bool("json", false, "Print the report as JSON")
	cmd.Flags().Int("parallel", 0, "Number of cases run concurrently (default from config)")
	return cmd
}

func testHandler(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		dir := envconfig.TestData()
		if dir == "" {
			return errors.New("no test directory given and ONNXBACKEND_TESTDATA is not set")
		}
		args = []string{dir}
	}

	cfg := conformance.DefaultConfig()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		var err error
		if cfg, err = conformance.LoadConfig(path); err != nil {
			return err
		}
	}
	if cmd.Flags().Changed("parallel") {
		cfg.Parallel, _ = cmd.Flags().GetInt("parallel")
	}

	var dirs []string
	for _, root := range args {
		found, err := conformance.Discover(root)
		if err != nil {
			return err
		}
		dirs = append(dirs, found...)
	}
	if len(dirs) == 0 {
		return fmt.Errorf("no test cases found under %v", args)
	}

	runner := &conformance.Runner{Backend: backend.New(), Config: cfg}
	report, err := runner.Run(cmd.Context(), dirs)
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		err = report.WriteJSON(cmd.OutOrStdout())
	} else {
		err = report.WriteTable(cmd.OutOrStdout())
	}
	if err != nil {
		return err
	}
	if !report.OK() {
		return fmt.Errorf("%d failed, %d errors", report.Counts[conformance.StatusFail], report.Counts[conformance.StatusError])
	}
	return nil
}
