// Package config loads gixflow's settings with flag > env > file > default
// precedence (viper's own order), the same github.com/spf13/viper idiom
// jroosing-HydraDNS/internal/config/config.go establishes, adapted to
// gixflow's flat key table (spec.md §6) instead of HydraDNS's nested
// per-section structure.
package config

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is every setting spec.md §6 and SPEC_FULL.md §6 name.
type Config struct {
	PIDFile        string
	LogFile        string
	Debug          bool
	DBFile         string
	ListenPort     int
	NetflowQueue   int
	NetflowWorkers int
	ForwardEnable  bool
	ForwardIP      string
	ForwardPort    int
	IP2ASN         bool
	CymruResolver  string
	ResolveTimeout time.Duration
	PinnedPrefixes []netip.Prefix
}

// Load reads configuration with flag > env > file > default precedence.
// configPath is the optional --config YAML file; flagOverrides carries
// whatever values were explicitly set on the command line (nil values and
// empty strings are skipped, so unset flags fall through to the
// env/file/default layers below them).
func Load(configPath string, flagOverrides map[string]interface{}) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("GIXFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	for key, val := range flagOverrides {
		if val == nil {
			continue
		}
		if s, ok := val.(string); ok && s == "" {
			continue
		}
		v.Set(key, val)
	}

	cfg := &Config{
		PIDFile:        v.GetString("pid_file"),
		LogFile:        v.GetString("log_file"),
		Debug:          v.GetBool("debug"),
		DBFile:         v.GetString("db_file"),
		ListenPort:     v.GetInt("listen_port"),
		NetflowQueue:   v.GetInt("netflow_queue"),
		NetflowWorkers: v.GetInt("netflow_workers"),
		ForwardEnable:  v.GetBool("forwardto_enable"),
		ForwardIP:      v.GetString("forwardto_ip"),
		ForwardPort:    v.GetInt("forwardto_port"),
		IP2ASN:         v.GetBool("ip2asn"),
		CymruResolver:  v.GetString("cymru_resolver"),
	}

	resolveTimeout, err := time.ParseDuration(v.GetString("resolve_timeout"))
	if err != nil {
		return nil, fmt.Errorf("invalid resolve_timeout: %w", err)
	}
	cfg.ResolveTimeout = resolveTimeout

	for _, raw := range v.GetStringSlice("pinned_prefixes") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		p, perr := netip.ParsePrefix(raw)
		if perr != nil {
			return nil, fmt.Errorf("invalid pinned_prefixes entry %q: %w", raw, perr)
		}
		cfg.PinnedPrefixes = append(cfg.PinnedPrefixes, p)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("pid_file", "/opt/gixflow/gixflow.pid")
	v.SetDefault("log_file", "/opt/gixflow/log_gixflow")
	v.SetDefault("debug", true)
	v.SetDefault("db_file", "/opt/gixflow/gixflow.db")
	v.SetDefault("listen_port", 9000)
	v.SetDefault("netflow_queue", 50000)
	v.SetDefault("netflow_workers", 50)
	v.SetDefault("forwardto_enable", false)
	v.SetDefault("forwardto_ip", "127.0.0.1")
	v.SetDefault("forwardto_port", 2100)
	v.SetDefault("ip2asn", false)
	v.SetDefault("cymru_resolver", "8.8.8.8:53")
	v.SetDefault("resolve_timeout", "2s")
	v.SetDefault("pinned_prefixes", []string{})
}

func validate(cfg *Config) error {
	if cfg.ListenPort <= 0 || cfg.ListenPort > 65535 {
		return fmt.Errorf("listen_port must be 1..65535, got %d", cfg.ListenPort)
	}
	if cfg.ForwardEnable {
		if cfg.ForwardPort <= 0 || cfg.ForwardPort > 65535 {
			return fmt.Errorf("forwardto_port must be 1..65535, got %d", cfg.ForwardPort)
		}
		if cfg.ForwardIP == "" {
			return fmt.Errorf("forwardto_ip must be set when forwardto_enable is true")
		}
	}
	if cfg.NetflowQueue <= 0 {
		return fmt.Errorf("netflow_queue must be positive, got %d", cfg.NetflowQueue)
	}
	if cfg.NetflowWorkers <= 0 {
		return fmt.Errorf("netflow_workers must be positive, got %d", cfg.NetflowWorkers)
	}
	return nil
}
