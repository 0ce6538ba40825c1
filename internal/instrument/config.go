// Copyright (c) 2026 webpdtool authors
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package instrument defines static instrument configuration, the driver
// capability contract, and the registry mapping instrument types to driver
// factories.
package instrument

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConnectionType discriminates the physical transport of an instrument.
type ConnectionType string

const (
	ConnVISA   ConnectionType = "VISA"
	ConnGPIB   ConnectionType = "GPIB"
	ConnTCPIP  ConnectionType = "TCPIP"
	ConnSerial ConnectionType = "Serial"
	ConnLocal  ConnectionType = "LOCAL"
	ConnSSH    ConnectionType = "SSH"
)

// Connection is the sum type of supported transports. Only the fields of
// the selected Type are meaningful.
type Connection struct {
	Type ConnectionType `json:"type" yaml:"type"`

	// VISA
	Address string `json:"address,omitempty" yaml:"address,omitempty"`
	// GPIB
	Board       int `json:"board,omitempty" yaml:"board,omitempty"`
	GPIBAddress int `json:"gpib_address,omitempty" yaml:"gpib_address,omitempty"`
	// TCPIP
	Host string `json:"host,omitempty" yaml:"host,omitempty"`
	Port int    `json:"port,omitempty" yaml:"port,omitempty"`
	// Serial
	SerialPort string `json:"serial_port,omitempty" yaml:"serial_port,omitempty"`
	Baud       int    `json:"baud,omitempty" yaml:"baud,omitempty"`
	// LOCAL (virtual command drivers, no physical session)
	Scheme string `json:"scheme,omitempty" yaml:"scheme,omitempty"`
	// SSH
	User    string `json:"user,omitempty" yaml:"user,omitempty"`
	KeyPath string `json:"key,omitempty" yaml:"key,omitempty"`
}

// Validate checks that the fields required by the connection type are set.
func (c Connection) Validate() error {
	switch c.Type {
	case ConnVISA:
		if c.Address == "" {
			return fmt.Errorf("VISA connection requires address")
		}
	case ConnGPIB:
		if c.GPIBAddress == 0 {
			return fmt.Errorf("GPIB connection requires gpib_address")
		}
	case ConnTCPIP:
		if c.Host == "" || c.Port == 0 {
			return fmt.Errorf("TCPIP connection requires host and port")
		}
	case ConnSerial:
		if c.SerialPort == "" {
			return fmt.Errorf("Serial connection requires serial_port")
		}
	case ConnSSH:
		if c.Host == "" || c.User == "" {
			return fmt.Errorf("SSH connection requires host and user")
		}
	case ConnLocal:
		// no-op transport
	default:
		return fmt.Errorf("unknown connection type %q", c.Type)
	}
	return nil
}

// Config is the static descriptor of one instrument. Loaded once at
// startup; never mutated during a session.
type Config struct {
	ID          string         `json:"-" yaml:"-"`
	Type        string         `json:"type" yaml:"type"`
	Name        string         `json:"name,omitempty" yaml:"name,omitempty"`
	Connection  Connection     `json:"connection" yaml:"connection"`
	Enabled     bool           `json:"enabled" yaml:"enabled"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Settings    map[string]any `json:"settings,omitempty" yaml:"settings,omitempty"`
}

// LoadConfigs reads the instrument configuration document: an object keyed
// by instrument id. JSON and YAML are accepted, by file extension.
func LoadConfigs(path string) (map[string]Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read instrument config: %w", err)
	}

	raw := map[string]Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse instrument config %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse instrument config %s: %w", path, err)
		}
	}

	out := make(map[string]Config, len(raw))
	for id, cfg := range raw {
		cfg.ID = id
		if err := cfg.Connection.Validate(); err != nil {
			return nil, fmt.Errorf("instrument %s: %w", id, err)
		}
		out[id] = cfg
	}
	return out, nil
}
