// Package exampleplugin is a minimal demo plugin: it subscribes to one
// broadcast topic and echoes each payload back on a reply topic, as a
// broadcast or as a directed message when the ping names a reply UID. It
// does not enable directed messaging for itself, so pings must be
// broadcast. It exists to give tests something concrete to wire up that
// isn't the memo plugin's full persistence stack.
package exampleplugin

import (
	"encoding/json"
	"log/slog"

	"github.com/vitaelegy/amadeus-bus/internal/bus"
	"github.com/vitaelegy/amadeus-bus/internal/pluginhost"
)

const pluginID = "EchoExample"

// TopicPing is the broadcast topic this plugin listens on.
const TopicPing bus.Topic = "example.ping"

// TopicPong is the topic this plugin replies on.
const TopicPong bus.Topic = "example.pong"

// Plugin echoes every message it sees on TopicPing back out on
// TopicPong, either as a broadcast or, if the message carries a
// non-empty "reply_uid" metadata key, directed at that UID.
type Plugin struct {
	pluginhost.BasePlugin

	logger *slog.Logger
	msgCtx *bus.MessageContext
	sub    <-chan bus.Message
	done   chan struct{}
}

// New constructs the example plugin.
func New(logger *slog.Logger) *Plugin {
	if logger == nil {
		logger = slog.Default()
	}
	meta := pluginhost.NewMetadata(pluginID, "Echoes example.ping back on example.pong", "1.0.0").
		WithEnabledByDefault(false)
	return &Plugin{
		BasePlugin: pluginhost.NewBasePlugin(meta),
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// SetupMessaging subscribes to TopicPing and spawns the echo loop.
func (p *Plugin) SetupMessaging(dc *bus.DistributionCenter, ingress chan<- bus.Message) (*bus.MessageContext, error) {
	ctx := bus.NewMessageContext(dc, p.ID(), p.Metadata().UID, ingress)
	p.msgCtx = ctx
	p.sub = ctx.Subscribe(TopicPing)

	go p.echoLoop()
	return ctx, nil
}

// Stop closes the echo loop. The subscription channel itself is left to
// the garbage collector once nothing references it; DistributionCenter
// requires no explicit teardown on unsubscribe.
func (p *Plugin) Stop() error {
	close(p.done)
	return nil
}

func (p *Plugin) echoLoop() {
	for {
		select {
		case msg, ok := <-p.sub:
			if !ok {
				return
			}
			p.handlePing(msg)
		case <-p.done:
			return
		}
	}
}

func (p *Plugin) handlePing(msg bus.Message) {
	out := bus.New(TopicPong, msg.Payload)
	if replyUID, ok := msg.Metadata["reply_uid"]; ok && replyUID != "" {
		out = out.WithRecipient(replyUID)
	}
	if err := p.msgCtx.Send(out); err != nil {
		p.logger.Error("exampleplugin: send failed", "error", err)
	}
}

// PingPayload builds a JSON payload carrying a free-form message string,
// the shape tests send on TopicPing.
func PingPayload(text string) json.RawMessage {
	b, _ := json.Marshal(struct {
		Text string `json:"text"`
	}{Text: text})
	return b
}
