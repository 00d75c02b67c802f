// Package cli implements gixflow's cobra command tree: start/stop/exabgp
// daemon control plus a lookup convenience subcommand, matching trident's
// RunE/SilenceUsage idiom and exit-code contract (spec.md §6).
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// usageError marks errors that should exit 2 rather than 1, per spec.md §6's
// "0 clean stop, 2 usage error" contract.
type usageError struct{ err error }

func (u usageError) Error() string { return u.err.Error() }
func (u usageError) Unwrap() error { return u.err }

// NewRootCmd builds the gixflow root command.
func NewRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "gixflow",
		Short:         "gixflow is a NetFlow/IPFIX collector with ASN enrichment",
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "optional YAML config file path")
	root.PersistentFlags().Int("listen-port", 0, "UDP ingest port (overrides config)")
	root.PersistentFlags().Bool("debug", false, "enable verbose telemetry lines (overrides config)")

	root.AddCommand(
		newStartCmd(&configPath),
		newStopCmd(&configPath),
		newExabgpCmd(&configPath),
		newLookupCmd(&configPath),
	)
	return root
}

// Execute runs the command tree against args, returning the process exit
// code: 0 on clean stop, 2 when a command returns a usageError (bad config,
// bad IP argument, unreadable or invalid pid file), 1 otherwise. Errors
// cobra raises itself (unknown subcommand or flag, wrong argument count)
// are not usageErrors and exit 1.
func Execute(args []string) int {
	root := NewRootCmd()
	root.SetArgs(args)
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "gixflow:", err)
		var ue usageError
		if errors.As(err, &ue) {
			return 2
		}
		return 1
	}
	return 0
}
