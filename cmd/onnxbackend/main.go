// Command onnxbackend inspects, validates and runs ONNX models on the
// built-in CPU engine, and runs ONNX backend conformance suites.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/born-ml/onnxbackend/internal/envconfig"
	"github.com/born-ml/onnxbackend/internal/logutil"
)

const version = "v0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := NewCLI().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// NewCLI builds the root command.
func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "onnxbackend",
		Short:         "Run ONNX models on the Go CPU engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := envconfig.LogLevel()
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				level = min(level, slog.LevelDebug)
			}
			slog.SetDefault(logutil.NewLogger(cmd.ErrOrStderr(), level))
		},
	}
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging (ONNXBACKEND_DEBUG=2 enables trace)")

	rootCmd.AddCommand(
		newInfoCmd(),
		newCheckCmd(),
		newRunCmd(),
		newTestCmd(),
		newOpsCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Show version information",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "onnxbackend %s\n", version)
			},
		},
	)
	return rootCmd
}
