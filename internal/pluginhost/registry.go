package pluginhost

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/vitaelegy/amadeus-bus/internal/bus"
)

// PluginRegistry owns a homogeneous collection of Plugin instances and
// drives their lifecycle. Transitions are exclusive to the registry; no
// plugin ever self-advances. Grounded on
// original_source/amadeus/src/plugin.rs's PluginRegistry, with
// run_lifecycle's reverse-order, error-tolerant stop_all preserved
// exactly.
type PluginRegistry struct {
	plugins []Plugin
	logger  *slog.Logger
}

// NewRegistry constructs an empty registry. A nil logger defaults to
// slog.Default().
func NewRegistry(logger *slog.Logger) *PluginRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &PluginRegistry{logger: logger}
}

// Register appends a single plugin.
func (r *PluginRegistry) Register(p Plugin) {
	r.logger.Info("registering plugin", "name", p.ID(), "uid", p.Metadata().UID)
	r.plugins = append(r.plugins, p)
}

// RegisterAll appends every plugin in plugins, in order.
func (r *PluginRegistry) RegisterAll(plugins []Plugin) {
	for _, p := range plugins {
		r.Register(p)
	}
}

// RegisterEnabled registers only the plugins whose metadata reports
// EnabledByDefault.
func (r *PluginRegistry) RegisterEnabled(plugins []Plugin) {
	for _, p := range plugins {
		if p.Metadata().EnabledByDefault {
			r.Register(p)
		} else {
			r.logger.Info("skipping disabled plugin", "name", p.ID())
		}
	}
}

// RegisterByNames registers only the plugins whose ID is present in
// names.
func (r *PluginRegistry) RegisterByNames(plugins []Plugin, names []string) {
	allowed := make(map[string]struct{}, len(names))
	for _, n := range names {
		allowed[n] = struct{}{}
	}
	for _, p := range plugins {
		if _, ok := allowed[p.ID()]; ok {
			r.Register(p)
		}
	}
}

// RegisterFiltered registers only the plugins for which filter returns
// true.
func (r *PluginRegistry) RegisterFiltered(plugins []Plugin, filter func(*PluginMetadata) bool) {
	for _, p := range plugins {
		if filter(p.Metadata()) {
			r.Register(p)
		}
	}
}

// Plugins returns the registered plugins in registration order.
func (r *PluginRegistry) Plugins() []Plugin {
	return r.plugins
}

// InitAll calls Init on every plugin in registration order, stopping at
// the first error.
func (r *PluginRegistry) InitAll() error {
	for _, p := range r.plugins {
		if err := p.Init(); err != nil {
			return fmt.Errorf("plugin %q init: %w", p.ID(), err)
		}
	}
	return nil
}

// SetupMessagingAll calls SetupMessaging on every plugin in registration
// order, passing dc and a fresh ingress-sender clone. The returned
// context is discarded per plugin — implementations that need to retain
// it must have stored it on themselves already. Stops at the first
// error.
func (r *PluginRegistry) SetupMessagingAll(dc *bus.DistributionCenter, ingress chan<- bus.Message) error {
	for _, p := range r.plugins {
		_, err := p.SetupMessaging(dc, ingress)
		if err != nil {
			return fmt.Errorf("plugin %q setup_messaging: %w", p.ID(), err)
		}
		r.logger.Debug("plugin messaging configured", "name", p.ID())
	}
	return nil
}

// StartAll calls Start on every plugin in registration order, stopping
// at the first error.
func (r *PluginRegistry) StartAll() error {
	for _, p := range r.plugins {
		if err := p.Start(); err != nil {
			return fmt.Errorf("plugin %q start: %w", p.ID(), err)
		}
	}
	return nil
}

// StopAll calls Stop on every plugin in the reverse of registration
// order. Unlike InitAll/StartAll, it tolerates individual failures: each
// error is logged and the loop continues, so that one misbehaving plugin
// cannot prevent the rest from shutting down.
func (r *PluginRegistry) StopAll() {
	for i := len(r.plugins) - 1; i >= 0; i-- {
		p := r.plugins[i]
		if err := p.Stop(); err != nil {
			r.logger.Error("plugin stop failed", "name", p.ID(), "error", err)
		}
	}
}

// ExportMetadata returns every registered plugin's metadata as an
// indented JSON array, suitable for an admin introspection endpoint.
func (r *PluginRegistry) ExportMetadata() ([]byte, error) {
	meta := make([]*PluginMetadata, 0, len(r.plugins))
	for _, p := range r.plugins {
		meta = append(meta, p.Metadata())
	}
	return json.MarshalIndent(meta, "", "  ")
}

// LoadConfig reads a JSON array of PluginMetadata from path, for
// reconciling against registered plugins (e.g. to drive RegisterByNames
// from a config file's enabled list).
func LoadConfig(path string) ([]PluginMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var meta []PluginMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// SaveConfig writes meta as an indented JSON array to path.
func SaveConfig(path string, meta []PluginMetadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
