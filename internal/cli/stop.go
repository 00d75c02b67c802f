package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"gixflow/internal/config"
)

func newStopCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Signal a running collector to stop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStop(*configPath)
		},
	}
}

func runStop(configPath string) error {
	cfg, err := config.Load(configPath, nil)
	if err != nil {
		return usageError{err}
	}

	raw, err := os.ReadFile(cfg.PIDFile)
	if err != nil {
		return usageError{fmt.Errorf("reading pid file %s: %w", cfg.PIDFile, err)}
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return usageError{fmt.Errorf("invalid pid in %s: %w", cfg.PIDFile, err)}
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding process %d: %w", pid, err)
	}
	return proc.Signal(syscall.SIGTERM)
}
