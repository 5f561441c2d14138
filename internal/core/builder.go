package core

import (
	"crypto/tls"

	"ircc/config"
	"ircc/internal/client"
	"ircc/internal/metrics"
	"ircc/internal/retry"
	"ircc/internal/transport"
	"ircc/tunnel"
	"ircc/util"
)

// Build constructs the appropriate Mode from the given configuration.
// cfg must already be finalized and validated.
func Build(cfg *config.Config, logger *util.Logger) (Mode, error) {
	if cfg.Probe {
		return buildProbe(cfg, logger), nil
	}
	return buildChat(cfg, logger), nil
}

// ── mode builders ────────────────────────────────────────────────────

func buildChat(cfg *config.Config, logger *util.Logger) Mode {
	return &ChatMode{
		Client:  client.New(clientOptions(cfg, logger)),
		Target:  target(cfg),
		Nick:    cfg.Nick,
		Backoff: initialBackoff(cfg),
		Logger:  logger.Named("chat"),
	}
}

func buildProbe(cfg *config.Config, logger *util.Logger) Mode {
	opts := clientOptions(cfg, logger)
	opts.ReconnectOnError = false
	return &ProbeMode{
		Client:  client.New(opts),
		Target:  target(cfg),
		Timeout: cfg.ConnTimeout,
		Logger:  logger.Named("probe"),
	}
}

// ── shared helpers ───────────────────────────────────────────────────

func target(cfg *config.Config) client.ConnectOptions {
	return client.ConnectOptions{Host: cfg.Host, Port: cfg.Port, TLS: cfg.TLS}
}

// clientOptions maps the lifecycle settings onto client.Options.
func clientOptions(cfg *config.Config, logger *util.Logger) client.Options {
	opts := client.DefaultOptions()
	opts.PingTimeout = cfg.PingTimeout
	opts.ReconnectOnError = cfg.ReconnectOnError
	opts.ReconnectDelayed = cfg.ReconnectDelayed
	opts.ReconnectDelays = cfg.ReconnectDelays
	opts.ReconnectMaxAttempts = cfg.ReconnectMaxAttempts
	opts.ConnTimeout = cfg.ConnTimeout
	opts.WriteTimeout = cfg.WriteTimeout
	opts.Network = cfg.Network
	opts.Dialer = buildDialer(cfg, logger)
	opts.Logger = logger
	opts.Metrics = metrics.New()
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{
			ServerName:         cfg.Host,
			InsecureSkipVerify: cfg.TLSInsecure, //nolint:gosec
			MinVersion:         tls.VersionTLS12,
		}
	}
	return opts
}

// buildDialer creates the right transport.Dialer for the given config.
func buildDialer(cfg *config.Config, logger *util.Logger) transport.Dialer {
	if cfg.TunnelEnabled {
		return transport.NewSSHDialer(&tunnel.SSHConfig{
			User:          cfg.TunnelUser,
			Host:          cfg.TunnelHost,
			Port:          cfg.TunnelPort,
			KeyPath:       cfg.SSHKeyPath,
			PromptPass:    cfg.SSHPassword,
			UseAgent:      cfg.UseSSHAgent,
			StrictHostKey: cfg.StrictHostKey,
			KnownHosts:    cfg.KnownHostsPath,
			ConnTimeout:   cfg.ConnTimeout,
			KeepAlive:     cfg.KeepAlive,
		}, logger)
	}

	if cfg.Proxy != "" {
		return &transport.ProxyDialer{URL: cfg.Proxy, Timeout: cfg.ConnTimeout}
	}

	return &transport.TCPDialer{Timeout: cfg.ConnTimeout}
}

// initialBackoff retries only the first connect; later drops are the
// client's own reconnect schedule.
func initialBackoff(cfg *config.Config) *retry.Backoff {
	b := retry.DefaultBackoff()
	b.MaxAttempts = cfg.InitialAttempts
	return b
}
