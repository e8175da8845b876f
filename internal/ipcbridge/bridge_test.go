package ipcbridge

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/vitaelegy/amadeus-bus/internal/bus"
)

// TestIPCLoopGuard covers scenario: two bridges peer on the same
// service. A plugin on host 1 publishes a broadcast message. The
// subscriber on host 2 must yield it exactly once, and host 2's own
// bridge must not re-publish it back to host 1 (the loop guard).
func TestIPCLoopGuard(t *testing.T) {
	transportA, transportB := newPipePair()

	dc1 := bus.NewDistributionCenter(nil)
	mgr1 := bus.NewMessageManager(dc1, nil)
	mgr1.StartMessageLoop()
	defer mgr1.StopMessageLoop()

	dc2 := bus.NewDistributionCenter(nil)
	mgr2 := bus.NewMessageManager(dc2, nil)
	mgr2.StartMessageLoop()
	defer mgr2.StopMessageLoop()

	bridge1 := NewBridgePlugin("host1", "Amadeus/Message/Service", transportA, nil, nil)
	bridge2 := NewBridgePlugin("host2", "Amadeus/Message/Service", transportB, nil, nil)

	if _, err := bridge1.SetupMessaging(dc1, mgr1.MessageSender()); err != nil {
		t.Fatalf("bridge1 SetupMessaging: %v", err)
	}
	if _, err := bridge2.SetupMessaging(dc2, mgr2.MessageSender()); err != nil {
		t.Fatalf("bridge2 SetupMessaging: %v", err)
	}
	defer bridge1.Stop()
	defer bridge2.Stop()

	host2Sub := dc2.Subscribe("demo.public", "reader")

	plugin := bus.NewMessageContext(dc1, "A", "uid-a", mgr1.MessageSender())
	body, _ := json.Marshal("hello from host1")
	if err := plugin.Send(bus.New("demo.public", body)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case msg := <-host2Sub:
		var got string
		if err := json.Unmarshal(msg.Payload, &got); err != nil {
			t.Fatalf("unmarshal payload: %v", err)
		}
		if got != "hello from host1" {
			t.Fatalf("payload = %q, want %q", got, "hello from host1")
		}
		if msg.Source.Kind != bus.SourceKindExternal || msg.Source.Value != "iceoryx2" {
			t.Fatalf("Source = %+v, want External(iceoryx2)", msg.Source)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("host2 never received the forwarded message")
	}

	select {
	case msg := <-host2Sub:
		t.Fatalf("host2 received an unexpected duplicate: %+v", msg)
	case <-time.After(300 * time.Millisecond):
	}

	select {
	case frame := <-transportA.in:
		t.Fatalf("host1 received an unexpected reflected frame: %v", frame)
	case <-time.After(300 * time.Millisecond):
	}
}
