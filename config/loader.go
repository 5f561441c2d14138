package config

// loader.go - configuration loading from environment variables.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (this file)
//   3. Config file  (file.go)
//   4. Defaults   (defaults.go)

import (
	"os"
	"strconv"
	"strings"
	"time"

	ircerr "ircc/internal/errors"
)

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the IRCC_ prefix.  Boolean values
// accept "1", "true", "yes" and "0", "false", "no" (case-insensitive);
// anything else leaves the field untouched.  Durations accept Go
// syntax or plain seconds.

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// env vars override the existing value.  This should be called BEFORE
// CLI flag parsing so that flags take precedence.  A malformed
// duration or schedule is reported as *errors.ConfigError.
func LoadFromEnv(cfg *Config) error {
	if v := os.Getenv("IRCC_HOST"); v != "" {
		cfg.Host = v
	}
	if v := envInt("IRCC_PORT"); v > 0 {
		cfg.Port = v
	}
	envBool("IRCC_TLS", &cfg.TLS)
	envBool("IRCC_TLS_INSECURE", &cfg.TLSInsecure)
	if v := os.Getenv("IRCC_NETWORK"); v != "" {
		cfg.Network = v
	}
	if v := os.Getenv("IRCC_NICK"); v != "" {
		cfg.Nick = v
	}
	if err := envDuration("IRCC_TIMEOUT", &cfg.ConnTimeout); err != nil {
		return err
	}

	// Lifecycle
	if err := envDuration("IRCC_PING_TIMEOUT", &cfg.PingTimeout); err != nil {
		return err
	}
	envBool("IRCC_RECONNECT", &cfg.ReconnectOnError)
	envBool("IRCC_RECONNECT_DELAYED", &cfg.ReconnectDelayed)
	if v := os.Getenv("IRCC_RECONNECT_DELAYS"); v != "" {
		delays, err := ParseDelays(v)
		if err != nil {
			return &ircerr.ConfigError{Field: "IRCC_RECONNECT_DELAYS", Value: v, Message: err.Error()}
		}
		cfg.ReconnectDelays = delays
	}
	if v := os.Getenv("IRCC_RECONNECT_MAX"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return &ircerr.ConfigError{Field: "IRCC_RECONNECT_MAX", Value: v, Message: "not a number"}
		}
		cfg.ReconnectMaxAttempts = n
	}

	// Proxy / SSH tunnel
	if v := os.Getenv("IRCC_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("IRCC_TUNNEL"); v != "" {
		cfg.TunnelSpec = v
	}
	if v := os.Getenv("IRCC_SSH_KEY"); v != "" {
		cfg.SSHKeyPath = v
	}
	envBool("IRCC_SSH_PASSWORD", &cfg.SSHPassword)
	envBool("IRCC_SSH_AGENT", &cfg.UseSSHAgent)
	envBool("IRCC_STRICT_HOSTKEY", &cfg.StrictHostKey)
	if v := os.Getenv("IRCC_KNOWN_HOSTS"); v != "" {
		cfg.KnownHostsPath = v
	}

	// Output
	if v := envInt("IRCC_VERBOSE"); v > 0 {
		cfg.Verbose = v
	}
	return nil
}

// ── helpers ──────────────────────────────────────────────────────────

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func envBool(key string, dst *bool) {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes":
		*dst = true
	case "0", "false", "no":
		*dst = false
	}
}

func envDuration(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := ParseDuration(v)
	if err != nil {
		return &ircerr.ConfigError{Field: key, Value: v, Message: "not a duration"}
	}
	*dst = d
	return nil
}
