// Package pluginhost implements the plugin lifecycle registry that wires
// plugins into the message bus: init -> setup_messaging -> start -> stop,
// driven exclusively by the registry. Grounded on
// original_source/amadeus/src/plugin.rs.
package pluginhost

import (
	"github.com/google/uuid"

	"github.com/vitaelegy/amadeus-bus/internal/bus"
)

// PluginMetadata is serializable bookkeeping about a plugin instance.
// UID is assigned once, at construction, and is stable for the lifetime
// of the instance; it never collides with another loaded instance.
type PluginMetadata struct {
	Name             string            `json:"name"`
	UID              string            `json:"uid"`
	Description      string            `json:"description"`
	Version          string            `json:"version"`
	Author           string            `json:"author,omitempty"`
	EnabledByDefault bool              `json:"enabled_by_default"`
	Properties       map[string]string `json:"properties,omitempty"`
}

// NewMetadata constructs metadata with a freshly assigned UID and
// EnabledByDefault set true, matching the Rust constructor's default.
func NewMetadata(name, description, version string) PluginMetadata {
	return PluginMetadata{
		Name:             name,
		UID:              uuid.NewString(),
		Description:      description,
		Version:          version,
		EnabledByDefault: true,
		Properties:       make(map[string]string),
	}
}

// WithAuthor returns a copy of m with Author set.
func (m PluginMetadata) WithAuthor(author string) PluginMetadata {
	m.Author = author
	return m
}

// WithEnabledByDefault returns a copy of m with EnabledByDefault set.
func (m PluginMetadata) WithEnabledByDefault(enabled bool) PluginMetadata {
	m.EnabledByDefault = enabled
	return m
}

// WithProperty returns a copy of m with a property key set.
func (m PluginMetadata) WithProperty(key, value string) PluginMetadata {
	props := make(map[string]string, len(m.Properties)+1)
	for k, v := range m.Properties {
		props[k] = v
	}
	props[key] = value
	m.Properties = props
	return m
}

// Plugin is the capability set every registered plugin implements. Unlike
// the Rust original's trait with default no-op methods, Go has no
// default interface methods — every method here is required. Concrete
// plugins that don't need one of the lifecycle hooks embed BasePlugin,
// which supplies a no-op implementation to override selectively.
type Plugin interface {
	// ID is the routing-visible name used in logs and topic-subscription
	// bookkeeping; directed delivery is keyed by Metadata().UID instead.
	// It need not be unique across plugins with different UIDs.
	ID() string

	// Metadata returns this plugin's metadata. The returned pointer is
	// owned by the plugin; callers must not mutate it.
	Metadata() *PluginMetadata

	// Init performs pure, allocation-only setup. It must be idempotent
	// within a single instance and must not touch the bus.
	Init() error

	// SetupMessaging is invoked once per plugin before Start. A nil
	// returned context signals "no messaging participation". Plugins
	// that spawn long-running goroutines here must store any handles
	// they need on themselves before returning, since the registry
	// discards the returned context.
	SetupMessaging(dc *bus.DistributionCenter, ingress chan<- bus.Message) (*bus.MessageContext, error)

	// Start begins any non-messaging activity.
	Start() error

	// Stop terminates gracefully. The registry calls Stop on every
	// plugin in the reverse of registration order and tolerates
	// individual failures.
	Stop() error
}

// BasePlugin supplies no-op Init/Start/Stop/SetupMessaging and the
// Metadata/ID accessors so concrete plugins only need to override the
// methods they actually use. Concrete plugins embed this and construct
// it with a PluginMetadata built via NewMetadata.
type BasePlugin struct {
	meta PluginMetadata
}

// NewBasePlugin constructs a BasePlugin carrying meta.
func NewBasePlugin(meta PluginMetadata) BasePlugin {
	return BasePlugin{meta: meta}
}

// ID returns the plugin's name.
func (b *BasePlugin) ID() string { return b.meta.Name }

// Metadata returns a pointer to the embedded metadata.
func (b *BasePlugin) Metadata() *PluginMetadata { return &b.meta }

// Init is a no-op by default.
func (b *BasePlugin) Init() error { return nil }

// SetupMessaging returns (nil, nil) by default: no messaging
// participation.
func (b *BasePlugin) SetupMessaging(*bus.DistributionCenter, chan<- bus.Message) (*bus.MessageContext, error) {
	return nil, nil
}

// Start is a no-op by default.
func (b *BasePlugin) Start() error { return nil }

// Stop is a no-op by default.
func (b *BasePlugin) Stop() error { return nil }
