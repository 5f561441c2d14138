package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	ircerr "ircc/internal/errors"
)

// Duration is a time.Duration that decodes from YAML as either a
// number of seconds or a Go duration string.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", n.Line)
	}
	v, err := ParseDuration(n.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q", n.Line, n.Value)
	}
	*d = Duration(v)
	return nil
}

// fileConfig mirrors the YAML layout.  Pointer fields distinguish an
// absent key from a zero value.
type fileConfig struct {
	Server struct {
		Host        *string   `yaml:"host"`
		Port        *int      `yaml:"port"`
		TLS         *bool     `yaml:"tls"`
		TLSInsecure *bool     `yaml:"tls_insecure"`
		Network     *string   `yaml:"network"`
		Nick        *string   `yaml:"nick"`
		Timeout     *Duration `yaml:"timeout"`
	} `yaml:"server"`

	Lifecycle struct {
		PingTimeout      *Duration  `yaml:"ping_timeout"`
		ReconnectOnError *bool      `yaml:"reconnect"`
		ReconnectDelayed *bool      `yaml:"reconnect_delayed"`
		ReconnectDelays  []Duration `yaml:"reconnect_delays"`
		ReconnectMax     *int       `yaml:"reconnect_max_attempts"`
		ConnectAttempts  *int       `yaml:"connect_attempts"`
	} `yaml:"lifecycle"`

	Proxy *string `yaml:"proxy"`

	Tunnel struct {
		Spec          *string   `yaml:"spec"`
		Key           *string   `yaml:"key"`
		Password      *bool     `yaml:"password"`
		Agent         *bool     `yaml:"agent"`
		StrictHostKey *bool     `yaml:"strict_hostkey"`
		KnownHosts    *string   `yaml:"known_hosts"`
		KeepAlive     *Duration `yaml:"keepalive"`
	} `yaml:"tunnel"`
}

// LoadFile overlays the YAML file at path onto cfg.  Keys missing from
// the file leave cfg untouched.
//
//	server:
//	  host: irc.libera.chat
//	  tls: true
//	lifecycle:
//	  ping_timeout: 3m
//	  reconnect_delays: [5, 5, 10s, 1m]
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &ircerr.ConfigError{Field: "config", Value: path, Message: err.Error()}
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return &ircerr.ConfigError{Field: "config", Value: path, Message: err.Error()}
	}
	fc.apply(cfg)
	return nil
}

func (fc *fileConfig) apply(cfg *Config) {
	s := fc.Server
	setString(&cfg.Host, s.Host)
	setInt(&cfg.Port, s.Port)
	setBool(&cfg.TLS, s.TLS)
	setBool(&cfg.TLSInsecure, s.TLSInsecure)
	setString(&cfg.Network, s.Network)
	setString(&cfg.Nick, s.Nick)
	setDuration(&cfg.ConnTimeout, s.Timeout)

	l := fc.Lifecycle
	setDuration(&cfg.PingTimeout, l.PingTimeout)
	setBool(&cfg.ReconnectOnError, l.ReconnectOnError)
	setBool(&cfg.ReconnectDelayed, l.ReconnectDelayed)
	if l.ReconnectDelays != nil {
		cfg.ReconnectDelays = make([]time.Duration, len(l.ReconnectDelays))
		for i, d := range l.ReconnectDelays {
			cfg.ReconnectDelays[i] = time.Duration(d)
		}
	}
	setInt(&cfg.ReconnectMaxAttempts, l.ReconnectMax)
	setInt(&cfg.InitialAttempts, l.ConnectAttempts)

	setString(&cfg.Proxy, fc.Proxy)

	t := fc.Tunnel
	setString(&cfg.TunnelSpec, t.Spec)
	setString(&cfg.SSHKeyPath, t.Key)
	setBool(&cfg.SSHPassword, t.Password)
	setBool(&cfg.UseSSHAgent, t.Agent)
	setBool(&cfg.StrictHostKey, t.StrictHostKey)
	setString(&cfg.KnownHostsPath, t.KnownHosts)
	setDuration(&cfg.KeepAlive, t.KeepAlive)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *Duration) {
	if v != nil {
		*dst = time.Duration(*v)
	}
}
