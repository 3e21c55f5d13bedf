package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/avbforge/avproxy/internal/aps"
	"github.com/avbforge/avproxy/internal/eui"
)

// apsctl config.toml key mapping to proxy server runtime settings.
type fileConfig struct {
	ListenAddr        string `toml:"listen_addr"`
	AdminListenAddr   string `toml:"admin_listen_addr"`
	ServerID          string `toml:"server_id"`
	NetworkPortMAC    string `toml:"network_port_mac"`
	EntityIDBase      string `toml:"entity_id_base"`
	MaxParseErrors    int    `toml:"max_parse_errors"`
	ReadTimeout       string `toml:"read_timeout"`
	WriteTimeout      string `toml:"write_timeout"`
	KeepaliveInterval string `toml:"keepalive_interval"`
}

func loadServiceConfig(path string) (aps.ServiceConfig, error) {
	cfg := aps.DefaultServiceConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return aps.ServiceConfig{}, fmt.Errorf("load aps config: %w", err)
	}

	if meta.IsDefined("listen_addr") {
		cfg.ListenAddr = strings.TrimSpace(raw.ListenAddr)
	}
	if meta.IsDefined("admin_listen_addr") {
		cfg.AdminListenAddr = strings.TrimSpace(raw.AdminListenAddr)
	}
	if meta.IsDefined("server_id") {
		cfg.ServerID = strings.TrimSpace(raw.ServerID)
	}
	if meta.IsDefined("network_port_mac") {
		mac, err := eui.ParseEUI48(raw.NetworkPortMAC)
		if err != nil {
			return aps.ServiceConfig{}, fmt.Errorf("parse network_port_mac: %w", err)
		}
		cfg.NetworkPortMAC = mac
	}
	if meta.IsDefined("entity_id_base") {
		base, err := eui.ParseEUI64(raw.EntityIDBase)
		if err != nil {
			return aps.ServiceConfig{}, fmt.Errorf("parse entity_id_base: %w", err)
		}
		cfg.EntityIDBase = base
	}
	if meta.IsDefined("max_parse_errors") {
		cfg.MaxParseErrors = raw.MaxParseErrors
	}
	if meta.IsDefined("read_timeout") {
		d, err := parseDuration(raw.ReadTimeout, "read_timeout")
		if err != nil {
			return aps.ServiceConfig{}, err
		}
		cfg.Session.ReadTimeout = d
	}
	if meta.IsDefined("write_timeout") {
		d, err := parseDuration(raw.WriteTimeout, "write_timeout")
		if err != nil {
			return aps.ServiceConfig{}, err
		}
		cfg.Session.WriteTimeout = d
	}
	if meta.IsDefined("keepalive_interval") {
		d, err := parseDuration(raw.KeepaliveInterval, "keepalive_interval")
		if err != nil {
			return aps.ServiceConfig{}, err
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
