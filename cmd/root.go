// Package cmd wires up the CLI flags and dispatches to the core modes.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	flag "github.com/spf13/pflag"

	"ircc/config"
	"ircc/internal/core"
	"ircc/internal/metrics"
	"ircc/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X ircc/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// Execute parses args and runs the selected ircc mode.
//
// Settings are layered defaults → --config file → IRCC_* environment →
// flags.  The flag set is bound after the lower layers are applied so
// that each flag's default is the value it would otherwise have.
func Execute(ctx context.Context, args []string) error {
	if len(args) == 0 {
		printUsage(newFlagSet(config.New(), new(runFlags)))
		return nil
	}

	cfg, rf, fs, err := parse(args)
	if err != nil {
		return err
	}
	if rf.help {
		printUsage(fs)
		return nil
	}
	if rf.version {
		fmt.Printf("ircc %s\n", version)
		return nil
	}

	// ── validate ─────────────────────────────────────────────────
	if err := cfg.Finalize(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if rf.dryRun {
		fmt.Fprintf(os.Stderr, "configuration OK: %s (tls=%v)\n", cfg.Addr(), cfg.TLS)
		return nil
	}

	// ── build and run ────────────────────────────────────────────
	logger := util.NewLogger(cfg.Verbose)
	mode, err := core.Build(cfg, logger)
	if err != nil {
		return err
	}

	err = mode.Run(ctx)
	if r, ok := mode.(interface{ Metrics() *metrics.Collector }); ok && cfg.Verbose > 0 {
		fmt.Fprintln(os.Stderr, r.Metrics().JSON())
	}
	return err
}

// parse layers the configuration sources and the command line into a
// Config.  Positional arguments are applied; validation is left to the
// caller.
func parse(args []string) (*config.Config, *runFlags, *flag.FlagSet, error) {
	cfg := config.New()
	if path := configPath(args); path != "" {
		if err := config.LoadFile(path, cfg); err != nil {
			return nil, nil, nil, err
		}
		cfg.ConfigFile = path
	}
	if err := config.LoadFromEnv(cfg); err != nil {
		return nil, nil, nil, err
	}

	envVerbose := cfg.Verbose
	rf := new(runFlags)
	fs := newFlagSet(cfg, rf)
	if err := fs.Parse(args); err != nil {
		return nil, nil, nil, err
	}
	if !fs.Changed("verbose") {
		cfg.Verbose = envVerbose
	}
	if rf.help || rf.version {
		return cfg, rf, fs, nil
	}

	// ── positional arguments ─────────────────────────────────────
	if err := parsePositional(cfg, fs.Args()); err != nil {
		return nil, nil, nil, err
	}
	return cfg, rf, fs, nil
}

// runFlags are flags that steer Execute rather than the session.
type runFlags struct {
	help, version, dryRun bool
}

func newFlagSet(cfg *config.Config, rf *runFlags) *flag.FlagSet {
	fs := flag.NewFlagSet("ircc", flag.ContinueOnError)

	// ── connection ───────────────────────────────────────────────
	fs.BoolVarP(&cfg.TLS, "tls", "s", cfg.TLS, "Connect with TLS (default port 6697)")
	fs.BoolVar(&cfg.TLSInsecure, "tls-insecure", cfg.TLSInsecure, "Skip TLS certificate verification")
	fs.StringVarP(&cfg.Network, "network", "N", cfg.Network, "Network name (overrides the server tag)")
	fs.StringVar(&cfg.Nick, "nick", cfg.Nick, "Register with NICK/USER after connecting")
	fs.DurationVarP(&cfg.ConnTimeout, "timeout", "w", cfg.ConnTimeout, "Connection timeout")
	fs.DurationVar(&cfg.WriteTimeout, "write-timeout", cfg.WriteTimeout, "Timeout for a single write")
	fs.BoolVarP(&cfg.Probe, "zero-io", "z", cfg.Probe, "Probe mode: print the first server line and exit")

	// ── lifecycle ────────────────────────────────────────────────
	fs.DurationVar(&cfg.PingTimeout, "ping-timeout", cfg.PingTimeout, "Drop the connection after this much silence")
	fs.BoolVar(&cfg.ReconnectOnError, "reconnect", cfg.ReconnectOnError, "Reconnect after an unexpected disconnect")
	fs.BoolVar(&cfg.ReconnectDelayed, "reconnect-delayed", cfg.ReconnectDelayed, "Wait between reconnect attempts")
	fs.DurationSliceVar(&cfg.ReconnectDelays, "reconnect-delays", cfg.ReconnectDelays, "Reconnect delay schedule")
	fs.IntVar(&cfg.ReconnectMaxAttempts, "reconnect-max", cfg.ReconnectMaxAttempts, "Give up after N reconnects in a row (0 = never)")
	fs.IntVar(&cfg.InitialAttempts, "connect-attempts", cfg.InitialAttempts, "Tries for the first connection")

	// ── proxy / SSH tunnel ───────────────────────────────────────
	fs.StringVar(&cfg.Proxy, "proxy", cfg.Proxy, "SOCKS5 proxy URL")
	fs.StringVarP(&cfg.TunnelSpec, "tunnel", "T", cfg.TunnelSpec, "SSH tunnel via [user@]host[:port]")
	fs.StringVar(&cfg.SSHKeyPath, "ssh-key", cfg.SSHKeyPath, "SSH private key file")
	fs.BoolVar(&cfg.SSHPassword, "ssh-password", cfg.SSHPassword, "Prompt for SSH password")
	fs.BoolVar(&cfg.UseSSHAgent, "ssh-agent", cfg.UseSSHAgent, "Use SSH agent")
	fs.BoolVar(&cfg.StrictHostKey, "strict-hostkey", cfg.StrictHostKey, "Verify SSH host keys")
	fs.StringVar(&cfg.KnownHostsPath, "known-hosts", cfg.KnownHostsPath, "Custom known_hosts path")
	fs.DurationVar(&cfg.KeepAlive, "keepalive", cfg.KeepAlive, "SSH keepalive interval (0 disables)")

	// ── output ───────────────────────────────────────────────────
	fs.CountVarP(&cfg.Verbose, "verbose", "v", "Increase verbosity (repeatable)")
	fs.StringP("config", "C", cfg.ConfigFile, "YAML configuration file")

	fs.BoolVar(&rf.version, "version", false, "Print version and exit")
	fs.BoolVar(&rf.dryRun, "dry-run", false, "Validate configuration and exit")
	fs.BoolVarP(&rf.help, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }
	return fs
}

// configPath finds --config before the full flag set is bound.
func configPath(args []string) string {
	fs := flag.NewFlagSet("ircc", flag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}
	path := fs.StringP("config", "C", "", "")
	fs.BoolP("help", "h", false, "")
	_ = fs.Parse(args)
	return *path
}

// ── helpers ──────────────────────────────────────────────────────────

// parsePositional accepts "host", "host port" or "host:port".
func parsePositional(cfg *config.Config, remaining []string) error {
	switch len(remaining) {
	case 0:
		if cfg.Host == "" {
			return fmt.Errorf("hostname required (use --help for usage)")
		}
		return nil
	case 1:
		host, port, err := util.SplitHostPort(remaining[0], cfg.Port)
		if err != nil {
			return err
		}
		cfg.Host, cfg.Port = host, port
		return nil
	case 2:
		port, err := strconv.Atoi(remaining[1])
		if err != nil || !util.ValidPort(port) {
			return fmt.Errorf("invalid port %q", remaining[1])
		}
		cfg.Host, cfg.Port = remaining[0], port
		return nil
	default:
		return fmt.Errorf("too many arguments: %q", remaining[2:])
	}
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `ircc – chat-protocol client v%s

A line-oriented chat client that keeps its connection alive: ping
watchdog, scheduled reconnects, TLS, SOCKS5 and SSH tunneling.

Usage:
  ircc [options] <host> [port]                Connect and relay stdin
  ircc -z [options] <host> [port]             Probe a server
  ircc -T user@gateway <host> [port]          Connect through SSH

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Examples:
  ircc --tls --nick gentoo irc.libera.chat    TLS on port 6697
  ircc -vz irc.example.net 6667               Check a server answers
  ircc --proxy socks5h://127.0.0.1:9050 irc.example.net
  ircc --reconnect-delays 1s,5s,30s --reconnect-max 10 irc.example.net
  ircc -C ~/.config/ircc.yaml                 Settings from a file
`)
}
