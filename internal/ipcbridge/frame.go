// Package ipcbridge implements the IPC bridge plugin: a publisher and a
// subscriber goroutine that move messages between the in-process bus and
// an external MQTT transport, a wiretap forwarder goroutine feeding the
// publisher, plus the hybrid AES-GCM/RSA envelope applied on egress. Grounded on
// original_source/amadeus/src/plugins/iceoryx2_dispatcher/mod.rs and
// original_source/amadeus/src/ipc/iceoryx2_types.rs.
package ipcbridge

import (
	"encoding/binary"

	"github.com/vitaelegy/amadeus-bus/internal/bus"
)

const (
	// topicFieldLen is the fixed byte capacity of the frame's topic
	// field, matching AmadeusMessageData.message_type in the Rust
	// original.
	topicFieldLen = 64
	// bodyFieldLen is the fixed byte capacity of the frame's body
	// field, matching AmadeusMessageData.json_data.
	bodyFieldLen = 4096

	// frameLen is the total wire size: topic[64] + topic_len(u8) +
	// body[4096] + body_len(u16) + priority(u8) + timestamp(u64).
	frameLen = topicFieldLen + 1 + bodyFieldLen + 2 + 1 + 8
)

// AmadeusFrame is the fixed-layout record used on the MQTT transport, a
// byte-for-byte Go re-expression of the Rust original's #[repr(C)]
// AmadeusMessageData. Go has no analogue of ZeroCopySend — the frame is
// marshaled into a flat byte slice with encoding/binary rather than
// reinterpreted in place — but the wire shape (field order, sizes,
// bounds) is identical.
type AmadeusFrame struct {
	Topic     string
	Body      []byte
	Priority  uint8
	Timestamp uint64
}

// NewFrame constructs a frame from a topic string, raw body bytes, a bus
// Priority, and a unix-millis timestamp.
func NewFrame(topic string, body []byte, priority bus.Priority, timestamp uint64) AmadeusFrame {
	return AmadeusFrame{
		Topic:     topic,
		Body:      body,
		Priority:  uint8(priority),
		Timestamp: timestamp,
	}
}

// Encode serializes f into its fixed-size wire representation. It
// returns ErrPayloadTooLarge if Topic exceeds 64 bytes or Body exceeds
// 4096 bytes, matching the Rust original's from_json bounds checks
// exactly.
func (f AmadeusFrame) Encode() ([]byte, error) {
	topicBytes := []byte(f.Topic)
	if len(topicBytes) > topicFieldLen {
		return nil, ErrPayloadTooLarge
	}
	if len(f.Body) > bodyFieldLen {
		return nil, ErrPayloadTooLarge
	}

	out := make([]byte, frameLen)
	offset := 0

	copy(out[offset:offset+topicFieldLen], topicBytes)
	offset += topicFieldLen
	out[offset] = uint8(len(topicBytes))
	offset++

	copy(out[offset:offset+bodyFieldLen], f.Body)
	offset += bodyFieldLen
	binary.LittleEndian.PutUint16(out[offset:offset+2], uint16(len(f.Body)))
	offset += 2

	out[offset] = f.Priority
	offset++

	binary.LittleEndian.PutUint64(out[offset:offset+8], f.Timestamp)

	return out, nil
}

// DecodeFrame parses the fixed-size wire representation produced by
// Encode. It returns ErrPayloadTooLarge if the encoded lengths exceed
// their field's capacity (a malformed or corrupted frame), matching the
// Rust original's message_type_str/json_str validation.
func DecodeFrame(data []byte) (AmadeusFrame, error) {
	if len(data) != frameLen {
		return AmadeusFrame{}, ErrPayloadTooLarge
	}

	offset := 0
	topicField := data[offset : offset+topicFieldLen]
	offset += topicFieldLen
	topicLen := int(data[offset])
	offset++
	if topicLen > topicFieldLen {
		return AmadeusFrame{}, ErrPayloadTooLarge
	}

	bodyField := data[offset : offset+bodyFieldLen]
	offset += bodyFieldLen
	bodyLen := int(binary.LittleEndian.Uint16(data[offset : offset+2]))
	offset += 2
	if bodyLen > bodyFieldLen {
		return AmadeusFrame{}, ErrPayloadTooLarge
	}

	priority := data[offset]
	offset++

	timestamp := binary.LittleEndian.Uint64(data[offset : offset+8])

	body := make([]byte, bodyLen)
	copy(body, bodyField[:bodyLen])

	return AmadeusFrame{
		Topic:     string(topicField[:topicLen]),
		Body:      body,
		Priority:  priority,
		Timestamp: timestamp,
	}, nil
}

// DecodedPriority maps the frame's raw priority byte to a bus.Priority,
// normalizing any out-of-range value (4..=255) to Normal.
func (f AmadeusFrame) DecodedPriority() bus.Priority {
	return bus.NormalizePriority(f.Priority)
}
