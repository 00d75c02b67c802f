package cli

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/spf13/cobra"

	"gixflow/internal/asnresolver"
	"gixflow/internal/config"
	"gixflow/internal/logging"
	"gixflow/internal/model"
	"gixflow/internal/prefixcache"
	"gixflow/internal/store"
)

// newLookupCmd adds a one-shot `gixflow lookup <ip>` convenience subcommand,
// recovered from the original reference's ad hoc lookup tooling and not
// present in spec.md's distilled verb set (SPEC_FULL.md §9 supplemented
// feature).
func newLookupCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <ip>",
		Short: "Resolve a single IP to its ASN, consulting the durable store and Cymru on miss",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLookup(cmd, *configPath, args[0])
		},
	}
}

func runLookup(cmd *cobra.Command, configPath, rawIP string) error {
	ip, err := netip.ParseAddr(rawIP)
	if err != nil {
		return usageError{fmt.Errorf("invalid IP %q: %w", rawIP, err)}
	}

	cfg, err := config.Load(configPath, nil)
	if err != nil {
		return usageError{err}
	}

	cache := prefixcache.New()
	cache.Seed()
	if len(cfg.PinnedPrefixes) > 0 {
		cache.SeedPinned(cfg.PinnedPrefixes)
	}

	db, err := store.Open(cfg.DBFile)
	if err != nil {
		return fmt.Errorf("opening durable store: %w", err)
	}
	rows, err := db.LoadAll()
	db.Close()
	if err != nil {
		return fmt.Errorf("loading durable store: %w", err)
	}
	entries := make([]prefixcache.Entry, 0, len(rows))
	for _, row := range rows {
		prefix, perr := netip.ParsePrefix(row.Prefix)
		if perr != nil {
			continue
		}
		entries = append(entries, prefixcache.Entry{Prefix: prefix, PrefixEntry: row.Entry})
	}
	cache.Hydrate(entries)

	resolver := asnresolver.New(cache, asnresolver.Config{Server: cfg.CymruResolver, Timeout: cfg.ResolveTimeout}, logging.New(cfg.Debug))

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	entry := resolver.ResolveEntry(ctx, ip)
	switch entry.ASN {
	case model.ASNUnknown:
		fmt.Fprintf(cmd.OutOrStdout(), "%s: UNKNOWN\n", ip)
	case model.ASNInternal:
		fmt.Fprintf(cmd.OutOrStdout(), "%s: INTERNAL (pinned)\n", ip)
	default:
		if entry.Name != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: AS%d (%s, %s)\n", ip, entry.ASN, entry.Name, entry.Country)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: AS%d\n", ip, entry.ASN)
		}
	}
	return nil
}
