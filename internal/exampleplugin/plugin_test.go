package exampleplugin

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/vitaelegy/amadeus-bus/internal/bus"
)

// TestEchoesBroadcastPing covers the plain broadcast echo path: a ping
// on TopicPing yields a matching pong on TopicPong.
func TestEchoesBroadcastPing(t *testing.T) {
	dc := bus.NewDistributionCenter(nil)
	mgr := bus.NewMessageManager(dc, nil)
	mgr.StartMessageLoop()
	defer mgr.StopMessageLoop()

	p := New(nil)
	if _, err := p.SetupMessaging(dc, mgr.MessageSender()); err != nil {
		t.Fatalf("SetupMessaging: %v", err)
	}
	defer p.Stop()

	pong := dc.Subscribe(TopicPong, "reader")

	sender := bus.NewMessageContext(dc, "tester", "uid-tester", mgr.MessageSender())
	if err := sender.Send(bus.New(TopicPing, PingPayload("hi"))); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case msg := <-pong:
		var got struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(msg.Payload, &got); err != nil {
			t.Fatalf("unmarshal payload: %v", err)
		}
		if got.Text != "hi" {
			t.Fatalf("Text = %q, want %q", got.Text, "hi")
		}
	case <-time.After(time.Second):
		t.Fatal("no pong received")
	}
}

// TestEchoesDirectedPingWhenReplyUIDSet covers the "reply_uid" metadata
// opt-in: the pong is directed at the requested UID instead of being
// broadcast on TopicPong.
func TestEchoesDirectedPingWhenReplyUIDSet(t *testing.T) {
	dc := bus.NewDistributionCenter(nil)
	mgr := bus.NewMessageManager(dc, nil)
	mgr.StartMessageLoop()
	defer mgr.StopMessageLoop()

	p := New(nil)
	if _, err := p.SetupMessaging(dc, mgr.MessageSender()); err != nil {
		t.Fatalf("SetupMessaging: %v", err)
	}
	defer p.Stop()

	broadcastPong := dc.Subscribe(TopicPong, "reader")
	directPong := dc.RegisterDirectChannel("uid-caller", 10)

	sender := bus.NewMessageContext(dc, "tester", "uid-tester", mgr.MessageSender())
	msg := bus.New(TopicPing, PingPayload("direct")).WithMetadata("reply_uid", "uid-caller")
	if err := sender.Send(msg); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case <-directPong:
	case <-time.After(time.Second):
		t.Fatal("no directed pong received")
	}

	select {
	case got := <-broadcastPong:
		t.Fatalf("unexpected broadcast pong: %+v", got)
	case <-time.After(100 * time.Millisecond):
	}
}
