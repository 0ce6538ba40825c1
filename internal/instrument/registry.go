// Copyright (c) 2026 webpdtool authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package instrument

import (
	"errors"
	"fmt"

	"github.com/webpdtool/webpdtool/internal/log"
)

// ErrNotConfigured signals a lookup for an instrument id that is not part
// of the loaded configuration.
var ErrNotConfigured = errors.New("instrument not configured")

// ErrUnknownType signals a config entry whose type has no registered
// driver factory.
var ErrUnknownType = errors.New("unknown instrument type")

// Built-in virtual instruments, always registered with LOCAL connections.
const (
	BuiltinConsole = "console_1"
	BuiltinComPort = "comport_1"
	BuiltinTCPIP   = "tcpip_1"
)

// Registry owns the immutable config map and the type → factory table.
// It is built once at startup; registration of an unknown type fails.
type Registry struct {
	configs   map[string]Config
	factories map[string]DriverFactory
}

// NewRegistry validates every config against the factory table and returns
// the registry. The built-in virtual instruments (console_1, comport_1,
// tcpip_1) are added unless the config already defines them.
func NewRegistry(configs map[string]Config, factories map[string]DriverFactory) (*Registry, error) {
	merged := make(map[string]Config, len(configs)+3)
	for id, cfg := range configs {
		merged[id] = cfg
	}
	for id, typ := range map[string]string{
		BuiltinConsole: "console",
		BuiltinComPort: "comport",
		BuiltinTCPIP:   "tcpip",
	} {
		if _, exists := merged[id]; !exists {
			merged[id] = Config{
				ID:         id,
				Type:       typ,
				Name:       id,
				Connection: Connection{Type: ConnLocal, Scheme: typ},
				Enabled:    true,
			}
		}
	}

	logger := log.WithComponent("instrument")
	for id, cfg := range merged {
		if _, ok := factories[cfg.Type]; !ok {
			return nil, fmt.Errorf("instrument %s: %w: %s", id, ErrUnknownType, cfg.Type)
		}
		logger.Debug().Str("id", id).Str("type", cfg.Type).Bool("enabled", cfg.Enabled).Msg("registered instrument")
	}

	return &Registry{configs: merged, factories: factories}, nil
}

// GetConfig returns the static config for an instrument id.
func (r *Registry) GetConfig(id string) (Config, error) {
	cfg, ok := r.configs[id]
	if !ok {
		return Config{}, fmt.Errorf("%w: %s", ErrNotConfigured, id)
	}
	return cfg, nil
}

// GetDriverFactory returns the factory for an instrument type.
func (r *Registry) GetDriverFactory(typ string) (DriverFactory, error) {
	f, ok := r.factories[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, typ)
	}
	return f, nil
}

// NewDriver constructs an unopened driver for an instrument id.
func (r *Registry) NewDriver(id string) (Driver, error) {
	cfg, err := r.GetConfig(id)
	if err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return nil, fmt.Errorf("%w: %s is disabled", ErrNotConfigured, id)
	}
	factory, err := r.GetDriverFactory(cfg.Type)
	if err != nil {
		return nil, err
	}
	return factory(cfg)
}

// IDs returns the configured instrument ids.
func (r *Registry) IDs() []string {
	out := make([]string, 0, len(r.configs))
	for id := range r.configs {
		out = append(out, id)
	}
	return out
}
