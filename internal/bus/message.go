// Package bus implements the in-process publish/subscribe message bus:
// the distribution center, per-plugin message contexts, and the manager
// that owns the routing loop.
package bus

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Topic is a routing key for broadcast delivery. Equality is by value;
// topics are used directly as map keys with no wildcard matching.
type Topic string

// Priority orders messages for consumers that care to look at it; the
// bus itself does not reorder delivery by priority.
type Priority uint8

// Priority levels. Note that the Go zero value of Priority is Low, not
// Normal — every constructor in this file sets Priority explicitly so
// callers never observe the zero-value pitfall.
const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// NormalizePriority maps any byte value outside 0..=3 to Normal, matching
// the frame decode rule in the ipcbridge package.
func NormalizePriority(b uint8) Priority {
	switch b {
	case uint8(PriorityLow), uint8(PriorityNormal), uint8(PriorityHigh), uint8(PriorityCritical):
		return Priority(b)
	default:
		return PriorityNormal
	}
}

// SourceKind distinguishes where a message originated.
type SourceKind uint8

const (
	SourceKindExternal SourceKind = iota
	SourceKindPlugin
	SourceKindSystem
)

// Source identifies the origin of a message. It serializes to JSON as
// {"kind":"plugin","value":"X"}, the Go analogue of the tagged Rust enum
// MessageSource::{External(String), Plugin(String), System}.
type Source struct {
	Kind  SourceKind `json:"-"`
	Value string     `json:"-"`
}

// External tags a message as having entered the bus from the IPC bridge's
// subscriber thread, carrying the peer tag that originated it.
func External(tag string) Source { return Source{Kind: SourceKindExternal, Value: tag} }

// FromPlugin tags a message as sent by the named in-process plugin.
func FromPlugin(name string) Source { return Source{Kind: SourceKindPlugin, Value: name} }

// System tags a message as originating from the bus infrastructure itself.
func System() Source { return Source{Kind: SourceKindSystem, Value: ""} }

type sourceJSON struct {
	Kind  string `json:"kind"`
	Value string `json:"value,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (s Source) MarshalJSON() ([]byte, error) {
	var kind string
	switch s.Kind {
	case SourceKindExternal:
		kind = "external"
	case SourceKindPlugin:
		kind = "plugin"
	case SourceKindSystem:
		kind = "system"
	default:
		kind = "system"
	}
	return json.Marshal(sourceJSON{Kind: kind, Value: s.Value})
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Source) UnmarshalJSON(data []byte) error {
	var sj sourceJSON
	if err := json.Unmarshal(data, &sj); err != nil {
		return err
	}
	switch sj.Kind {
	case "external":
		s.Kind = SourceKindExternal
	case "plugin":
		s.Kind = SourceKindPlugin
	case "system":
		s.Kind = SourceKindSystem
	default:
		s.Kind = SourceKindSystem
	}
	s.Value = sj.Value
	return nil
}

// Permission is a colon-segmented capability string, e.g. "memo:create".
// Grounded on original_source's core::user::Permission: a trailing "*"
// segment matches any suffix at that position.
type Permission string

// Matches reports whether p (held) satisfies required. A bare "*" matches
// everything; a segment of "*" matches any single corresponding segment
// and everything after it, mirroring the Rust original's colon-wildcard
// semantics exactly.
func (p Permission) Matches(required string) bool {
	if string(p) == "*" {
		return true
	}
	if string(p) == required {
		return true
	}
	heldSegs := splitSegments(string(p))
	reqSegs := splitSegments(required)
	for i, hs := range heldSegs {
		if hs == "*" {
			return true
		}
		if i >= len(reqSegs) || hs != reqSegs[i] {
			return false
		}
	}
	return len(heldSegs) == len(reqSegs)
}

func splitSegments(s string) []string {
	var segs []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			segs = append(segs, s[start:i])
			start = i + 1
		}
	}
	segs = append(segs, s[start:])
	return segs
}

// UserContext carries the identity and authorization envelope attached to
// a message, grounded on original_source/amadeus/src/core/user.rs.
type UserContext struct {
	UserID      string       `json:"user_id"`
	Roles       []string     `json:"roles"`
	Permissions []Permission `json:"permissions"`
	ExpiresAt   *int64       `json:"expires_at,omitempty"`
}

// adminRoles bypass the permission check entirely, matching the Rust
// original's role-based short-circuit.
var adminRoles = map[string]struct{}{
	"admin": {},
	"root":  {},
}

// HasPermission reports whether this context may perform the action named
// by required. Admin and root roles bypass the check; otherwise any held
// permission that Matches required is sufficient.
func (u *UserContext) HasPermission(required string) bool {
	if u == nil {
		return false
	}
	for _, role := range u.Roles {
		if _, ok := adminRoles[role]; ok {
			return true
		}
	}
	for _, p := range u.Permissions {
		if p.Matches(required) {
			return true
		}
	}
	return false
}

// Message is the carrier value routed by the bus.
type Message struct {
	Topic       Topic             `json:"topic"`
	Payload     json.RawMessage   `json:"payload"`
	Priority    Priority          `json:"priority"`
	Source      Source            `json:"source"`
	Recipient   *string           `json:"recipient,omitempty"`
	Timestamp   int64             `json:"timestamp"`
	MessageID   *string           `json:"message_id,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	UserContext *UserContext      `json:"user_context,omitempty"`
}

// IsDirected reports whether this message targets a specific plugin UID
// rather than being broadcast on its topic.
func (m Message) IsDirected() bool {
	return m.Recipient != nil
}

// New constructs a broadcast message with Source = System, Priority =
// Normal, a fresh timestamp, and a fresh message ID.
func New(topic Topic, payload json.RawMessage) Message {
	return Message{
		Topic:     topic,
		Payload:   payload,
		Priority:  PriorityNormal,
		Source:    System(),
		Timestamp: nowMillis(),
		MessageID: strPtr(uuid.NewString()),
	}
}

// FromExternal constructs a message tagged as having entered the bus from
// the IPC bridge, preserving whatever timestamp the caller supplies (the
// subscriber thread passes through the sender's original timestamp
// verbatim, per spec).
func FromExternal(topic Topic, payload json.RawMessage, tag string, timestamp int64) Message {
	return Message{
		Topic:     topic,
		Payload:   payload,
		Priority:  PriorityNormal,
		Source:    External(tag),
		Timestamp: timestamp,
		MessageID: strPtr(uuid.NewString()),
	}
}

// FromPluginMsg constructs a message stamped as sent by the named plugin.
// MessageContext.Send uses this same stamping rule unconditionally, even
// if the caller already set Source on the message it passed in.
func FromPluginMsg(name string, topic Topic, payload json.RawMessage) Message {
	return Message{
		Topic:     topic,
		Payload:   payload,
		Priority:  PriorityNormal,
		Source:    FromPlugin(name),
		Timestamp: nowMillis(),
		MessageID: strPtr(uuid.NewString()),
	}
}

// WithPriority returns a copy of m with Priority set.
func (m Message) WithPriority(p Priority) Message {
	m.Priority = p
	return m
}

// WithRecipient returns a copy of m addressed to the given plugin UID,
// making it a directed message.
func (m Message) WithRecipient(uid string) Message {
	m.Recipient = strPtr(uid)
	return m
}

// WithID returns a copy of m with an explicit correlation ID.
func (m Message) WithID(id string) Message {
	m.MessageID = strPtr(id)
	return m
}

// WithMetadata returns a copy of m with a metadata key set.
func (m Message) WithMetadata(key, value string) Message {
	md := make(map[string]string, len(m.Metadata)+1)
	for k, v := range m.Metadata {
		md[k] = v
	}
	md[key] = value
	m.Metadata = md
	return m
}

// ToJSON serializes the message. The inverse of FromJSON.
func (m Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// FromJSON deserializes a message previously produced by ToJSON.
func FromJSON(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, err
	}
	return m, nil
}

func strPtr(s string) *string { return &s }

func nowMillis() int64 { return time.Now().UnixMilli() }
