// Package config loads relay and client settings from the environment.
// Deployment tooling owns the values; this package owns the schema and
// defaults.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config collects every process-boundary setting.
type Config struct {
	// ListenAddr is the relay's listen address (OFFPAY_LISTEN_ADDR).
	ListenAddr string
	// AllowedOrigins restricts websocket upgrades; empty allows all
	// (OFFPAY_ALLOWED_ORIGINS, comma-separated).
	AllowedOrigins []string
	// DataDir roots the per-user ledger and transaction log files
	// (OFFPAY_DATA_DIR).
	DataDir string
	// RelayURL is the websocket endpoint clients dial (OFFPAY_RELAY_URL).
	RelayURL string
	// StoreSecret keys the transaction-log encryption (OFFPAY_STORE_SECRET).
	StoreSecret string
	// GateKey signs payment capability tokens; empty selects the demo
	// static gate (OFFPAY_GATE_KEY).
	GateKey string
	// GateTTL bounds capability-token lifetime (OFFPAY_GATE_TTL).
	GateTTL time.Duration
}

// Load reads the environment with defaults suitable for local use.
func Load() *Config {
	v := viper.New()
	v.SetEnvPrefix("OFFPAY")
	v.AutomaticEnv()

	v.SetDefault("listen_addr", ":3001")
	v.SetDefault("allowed_origins", "")
	v.SetDefault("data_dir", defaultDataDir())
	v.SetDefault("relay_url", "ws://localhost:3001/ws")
	v.SetDefault("store_secret", "demo_secret_key")
	v.SetDefault("gate_key", "")
	v.SetDefault("gate_ttl", 5*time.Minute)

	return &Config{
		ListenAddr:     v.GetString("listen_addr"),
		AllowedOrigins: splitOrigins(v.GetString("allowed_origins")),
		DataDir:        v.GetString("data_dir"),
		RelayURL:       v.GetString("relay_url"),
		StoreSecret:    v.GetString("store_secret"),
		GateKey:        v.GetString("gate_key"),
		GateTTL:        v.GetDuration("gate_ttl"),
	}
}

func splitOrigins(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func defaultDataDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "offpay")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "offpay")
}
