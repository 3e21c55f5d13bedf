package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/avbforge/avproxy/internal/apc"
	"github.com/avbforge/avproxy/internal/eui"
)

// apcctl config.toml key mapping to proxy client runtime settings.
type fileConfig struct {
	Address            string `toml:"address"`
	PrimaryMAC         string `toml:"primary_mac"`
	DesiredEntityID    string `toml:"desired_entity_id"`
	MaxConnectAttempts int    `toml:"max_connect_attempts"`
	MaxParseErrors     int    `toml:"max_parse_errors"`
	ConnectTimeout     string `toml:"connect_timeout"`
	ReadTimeout        string `toml:"read_timeout"`
	WriteTimeout       string `toml:"write_timeout"`
	KeepaliveInterval  string `toml:"keepalive_interval"`
}

func loadClientConfig(path string) (apc.Config, error) {
	cfg := apc.DefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return apc.Config{}, fmt.Errorf("load apc config: %w", err)
	}

	if meta.IsDefined("address") {
		cfg.Address = strings.TrimSpace(raw.Address)
	}
	if meta.IsDefined("primary_mac") {
		mac, err := eui.ParseEUI48(raw.PrimaryMAC)
		if err != nil {
			return apc.Config{}, fmt.Errorf("parse primary_mac: %w", err)
		}
		cfg.PrimaryMAC = mac
	}
	if meta.IsDefined("desired_entity_id") {
		id, err := eui.ParseEUI64(raw.DesiredEntityID)
		if err != nil {
			return apc.Config{}, fmt.Errorf("parse desired_entity_id: %w", err)
		}
		cfg.DesiredEntityID = id
	}
	if meta.IsDefined("max_connect_attempts") {
		cfg.MaxConnectAttempts = raw.MaxConnectAttempts
	}
	if meta.IsDefined("max_parse_errors") {
		cfg.MaxParseErrors = raw.MaxParseErrors
	}
	if meta.IsDefined("connect_timeout") {
		d, err := parseDuration(raw.ConnectTimeout, "connect_timeout")
		if err != nil {
			return apc.Config{}, err
		}
		cfg.Session.ConnectTimeout = d
	}
	if meta.IsDefined("read_timeout") {
		d, err := parseDuration(raw.ReadTimeout, "read_timeout")
		if err != nil {
			return apc.Config{}, err
		}
		cfg.Session.ReadTimeout = d
	}
	if meta.IsDefined("write_timeout") {
		d, err := parseDuration(raw.WriteTimeout, "write_timeout")
		if err != nil {
			return apc.Config{}, err
		}
		cfg.Session.WriteTimeout = d
	}
	if meta.IsDefined("keepalive_interval") {
		d, err := parseDuration(raw.KeepaliveInterval, "keepalive_interval")
		if err != nil {
			return apc.Config{}, err
		}
		cfg.Session.KeepaliveInterval = d
	}

	return cfg, nil
}

func parseDuration(raw, key string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}
