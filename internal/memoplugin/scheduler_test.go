package memoplugin

import (
	"sync"
	"testing"
	"time"
)

func TestSchedulerFiresReminderAfterDelay(t *testing.T) {
	s := newTestStore(t)

	remindAt := time.Now().Add(50 * time.Millisecond)
	m := &Memo{OwnerUserID: "u1", Title: "t", Body: "b", RemindAt: &remindAt}
	if err := s.CreateMemo(m); err != nil {
		t.Fatalf("CreateMemo: %v", err)
	}

	fired := make(chan *Memo, 1)
	sched := NewScheduler(nil, s, func(memo *Memo) { fired <- memo })
	sched.Schedule(m)
	if err := sched.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sched.Stop()

	select {
	case got := <-fired:
		if got.ID != m.ID {
			t.Fatalf("fired memo ID = %q, want %q", got.ID, m.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("reminder did not fire in time")
	}
}

func TestSchedulerCatchesUpOverdueRemindersOnStart(t *testing.T) {
	s := newTestStore(t)

	past := time.Now().Add(-time.Hour)
	m := &Memo{OwnerUserID: "u1", Title: "overdue", Body: "b", RemindAt: &past}
	if err := s.CreateMemo(m); err != nil {
		t.Fatalf("CreateMemo: %v", err)
	}

	fired := make(chan *Memo, 1)
	sched := NewScheduler(nil, s, func(memo *Memo) { fired <- memo })
	if err := sched.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sched.Stop()

	select {
	case got := <-fired:
		if got.ID != m.ID {
			t.Fatalf("fired memo ID = %q, want %q", got.ID, m.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("overdue reminder was not caught up on Start")
	}
}

func TestSchedulerCancelStopsFutureFire(t *testing.T) {
	s := newTestStore(t)

	remindAt := time.Now().Add(50 * time.Millisecond)
	m := &Memo{OwnerUserID: "u1", Title: "t", Body: "b", RemindAt: &remindAt}
	if err := s.CreateMemo(m); err != nil {
		t.Fatalf("CreateMemo: %v", err)
	}

	var mu sync.Mutex
	fireCount := 0
	sched := NewScheduler(nil, s, func(memo *Memo) {
		mu.Lock()
		fireCount++
		mu.Unlock()
	})
	if err := sched.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sched.Stop()

	sched.Schedule(m)
	sched.Cancel(m.ID)

	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if fireCount != 0 {
		t.Fatalf("fireCount = %d after Cancel, want 0", fireCount)
	}
}

func TestSchedulerScheduleWithNilRemindAtCancelsExisting(t *testing.T) {
	s := newTestStore(t)

	remindAt := time.Now().Add(50 * time.Millisecond)
	m := &Memo{OwnerUserID: "u1", Title: "t", Body: "b", RemindAt: &remindAt}
	if err := s.CreateMemo(m); err != nil {
		t.Fatalf("CreateMemo: %v", err)
	}

	fired := make(chan *Memo, 1)
	sched := NewScheduler(nil, s, func(memo *Memo) { fired <- memo })
	if err := sched.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sched.Stop()

	sched.Schedule(m)

	m.RemindAt = nil
	sched.Schedule(m)

	select {
	case got := <-fired:
		t.Fatalf("unexpected fire after clearing RemindAt: %+v", got)
	case <-time.After(150 * time.Millisecond):
	}

	stats := sched.Stats()
	if stats["active_timers"] != 0 {
		t.Fatalf("active_timers = %v, want 0", stats["active_timers"])
	}
}

func TestSchedulerStopWaitsForInFlightReminder(t *testing.T) {
	s := newTestStore(t)

	remindAt := time.Now().Add(10 * time.Millisecond)
	m := &Memo{OwnerUserID: "u1", Title: "t", Body: "b", RemindAt: &remindAt}
	if err := s.CreateMemo(m); err != nil {
		t.Fatalf("CreateMemo: %v", err)
	}

	started := make(chan struct{})
	release := make(chan struct{})
	sched := NewScheduler(nil, s, func(memo *Memo) {
		close(started)
		<-release
	})
	if err := sched.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	sched.Schedule(m)

	<-started

	stopped := make(chan struct{})
	go func() {
		sched.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned before the in-flight reminder finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after reminder finished")
	}
}
