package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"gixflow/internal/config"
	"gixflow/internal/daemon"
)

func newStartCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Run the collector in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runForeground(cmd, *configPath)
		},
	}
}

func newExabgpCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "exabgp",
		Short: "Run the collector in foreground mode, reserved for a future BGP integration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// exabgp currently behaves exactly like start; no daemonization,
			// no BGP announcement yet.
			return runForeground(cmd, *configPath)
		},
	}
}

func runForeground(cmd *cobra.Command, configPath string) error {
	overrides := map[string]interface{}{}
	if p, err := cmd.Flags().GetInt("listen-port"); err == nil && p != 0 {
		overrides["listen_port"] = p
	}
	if d, err := cmd.Flags().GetBool("debug"); err == nil && d {
		overrides["debug"] = true
	}

	cfg, err := config.Load(configPath, overrides)
	if err != nil {
		return usageError{err}
	}

	if err := writePIDFile(cfg.PIDFile); err != nil {
		return fmt.Errorf("writing pid file: %w", err)
	}
	defer os.Remove(cfg.PIDFile)

	d, err := daemon.New(daemon.Config{
		ListenPort:     cfg.ListenPort,
		QueueDepth:     cfg.NetflowQueue,
		Workers:        cfg.NetflowWorkers,
		IP2ASN:         cfg.IP2ASN,
		StorePath:      cfg.DBFile,
		CymruResolver:  cfg.CymruResolver,
		ResolveTimeout: cfg.ResolveTimeout,
		ForwardEnabled: cfg.ForwardEnable,
		ForwardHost:    cfg.ForwardIP,
		ForwardPort:    cfg.ForwardPort,
		PinnedPrefixes: cfg.PinnedPrefixes,
		Debug:          cfg.Debug,
	})
	if err != nil {
		return fmt.Errorf("initializing daemon: %w", err)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return d.Run(ctx)
}

func writePIDFile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}
