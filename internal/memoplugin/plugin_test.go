package memoplugin

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/vitaelegy/amadeus-bus/internal/bus"
)

// newTestPlugin wires a memo plugin onto a fresh bus, using a temp
// directory for its SQLite file.
func newTestPlugin(t *testing.T) (*Plugin, *bus.DistributionCenter, *bus.MessageManager) {
	t.Helper()
	dc := bus.NewDistributionCenter(nil)
	mgr := bus.NewMessageManager(dc, nil)
	mgr.StartMessageLoop()
	t.Cleanup(mgr.StopMessageLoop)

	p := New(filepath.Join(t.TempDir(), "memos.db"), nil)
	if err := p.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, err := p.SetupMessaging(dc, mgr.MessageSender()); err != nil {
		t.Fatalf("SetupMessaging: %v", err)
	}
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { p.Stop() })

	return p, dc, mgr
}

func TestPluginCreateMemoPublishesCreated(t *testing.T) {
	_, dc, mgr := newTestPlugin(t)

	created := dc.Subscribe(topicMemoCreated, "reader")
	sender := bus.NewMessageContext(dc, "tester", "uid-tester", mgr.MessageSender())

	req := CreateMemoRequest{OwnerUserID: "u1", Title: "groceries", Body: "eggs"}
	body, _ := json.Marshal(req)
	if err := sender.Send(bus.New(topicMemoCreate, body)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case msg := <-created:
		var memo Memo
		if err := json.Unmarshal(msg.Payload, &memo); err != nil {
			t.Fatalf("unmarshal payload: %v", err)
		}
		if memo.Title != "groceries" || memo.OwnerUserID != "u1" {
			t.Fatalf("memo = %+v, want title=groceries owner=u1", memo)
		}
	case <-time.After(time.Second):
		t.Fatal("no system.memo.created received")
	}
}

func TestPluginCreateMemoRepliesDirectedWhenReplyToSet(t *testing.T) {
	_, dc, mgr := newTestPlugin(t)

	broadcastCreated := dc.Subscribe(topicMemoCreated, "reader")
	directCreated := dc.RegisterDirectChannel("uid-caller", 10)
	sender := bus.NewMessageContext(dc, "tester", "uid-tester", mgr.MessageSender())

	req := CreateMemoRequest{OwnerUserID: "u1", Title: "groceries", Body: "eggs"}
	body, _ := json.Marshal(req)
	msg := bus.New(topicMemoCreate, body).WithMetadata(replyToMetadataKey, "uid-caller")
	if err := sender.Send(msg); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case <-directCreated:
	case <-time.After(time.Second):
		t.Fatal("no directed system.memo.created received")
	}

	select {
	case got := <-broadcastCreated:
		t.Fatalf("unexpected broadcast reply: %+v", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPluginListMemosRepliesWithOwnerMemos(t *testing.T) {
	p, dc, mgr := newTestPlugin(t)

	memo := &Memo{OwnerUserID: "u1", Title: "t", Body: "b"}
	if err := p.store.CreateMemo(memo); err != nil {
		t.Fatalf("CreateMemo (seed): %v", err)
	}

	listReply := dc.Subscribe(topicMemoListRepl, "reader")
	sender := bus.NewMessageContext(dc, "tester", "uid-tester", mgr.MessageSender())

	req := ListMemoRequest{OwnerUserID: "u1"}
	body, _ := json.Marshal(req)
	if err := sender.Send(bus.New(topicMemoList, body)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case msg := <-listReply:
		var memos []*Memo
		if err := json.Unmarshal(msg.Payload, &memos); err != nil {
			t.Fatalf("unmarshal payload: %v", err)
		}
		if len(memos) != 1 || memos[0].ID != memo.ID {
			t.Fatalf("memos = %+v, want only %q", memos, memo.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("no system.memo.list.reply received")
	}
}

func TestPluginCompleteMemoCancelsReminderAndPublishes(t *testing.T) {
	p, dc, mgr := newTestPlugin(t)

	remindAt := time.Now().Add(20 * time.Millisecond)
	memo := &Memo{OwnerUserID: "u1", Title: "t", Body: "b", RemindAt: &remindAt}
	if err := p.store.CreateMemo(memo); err != nil {
		t.Fatalf("CreateMemo (seed): %v", err)
	}
	p.scheduler.Schedule(memo)

	created := dc.Subscribe(topicMemoCreated, "reader")
	remind := dc.Subscribe(topicMemoRemind, "reader")
	sender := bus.NewMessageContext(dc, "tester", "uid-tester", mgr.MessageSender())

	req := CompleteMemoRequest{ID: memo.ID}
	body, _ := json.Marshal(req)
	if err := sender.Send(bus.New(topicMemoComplete, body)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case msg := <-created:
		var got Memo
		if err := json.Unmarshal(msg.Payload, &got); err != nil {
			t.Fatalf("unmarshal payload: %v", err)
		}
		if got.Status != MemoStatusCompleted {
			t.Fatalf("Status = %q, want %q", got.Status, MemoStatusCompleted)
		}
	case <-time.After(time.Second):
		t.Fatal("no system.memo.created (completion) received")
	}

	select {
	case got := <-remind:
		t.Fatalf("reminder fired after completion cancelled it: %+v", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPluginUserResolveAndGrantRole(t *testing.T) {
	p, dc, mgr := newTestPlugin(t)

	resolved := dc.Subscribe(topicUserResolved, "reader")
	sender := bus.NewMessageContext(dc, "tester", "uid-tester", mgr.MessageSender())

	req := ResolveUserRequest{Platform: "discord", PlatformUserID: "42", Name: "Bob"}
	body, _ := json.Marshal(req)
	if err := sender.Send(bus.New(topicUserResolve, body)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	var user User
	select {
	case msg := <-resolved:
		if err := json.Unmarshal(msg.Payload, &user); err != nil {
			t.Fatalf("unmarshal payload: %v", err)
		}
		if user.Name != "Bob" {
			t.Fatalf("Name = %q, want %q", user.Name, "Bob")
		}
	case <-time.After(time.Second):
		t.Fatal("no system.user.resolved received")
	}

	grantReq := GrantRoleRequest{UserID: user.ID, Role: "admin"}
	grantBody, _ := json.Marshal(grantReq)
	if err := sender.Send(bus.New(topicUserGrantRole, grantBody)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	// grant_role has no reply topic, so poll the store directly until
	// the handler goroutine has applied it.
	deadline := time.Now().Add(time.Second)
	for {
		roles, err := p.store.RolesForUser(user.ID)
		if err != nil {
			t.Fatalf("RolesForUser: %v", err)
		}
		if len(roles) == 1 && roles[0] == "admin" {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("roles for user = %+v, want [admin]", roles)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
