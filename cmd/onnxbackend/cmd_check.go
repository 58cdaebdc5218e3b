package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/born-ml/onnxbackend/internal/checker"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check MODEL",
		Short: "Validate a model with the structural checker",
		Args:  cobra.ExactArgs(1),
		RunE:  checkHandler,
	}
}

func checkHandler(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	err = checker.Check(data)
	var verr *checker.ValidationError
	if errors.As(err, &verr) && len(verr.Issues) > 0 {
		for _, issue := range verr.Issues {
			fmt.Fprintln(cmd.OutOrStdout(), issue)
		}
		return fmt.Errorf("%s: %d issues", args[0], len(verr.Issues))
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", args[0])
	return nil
}
