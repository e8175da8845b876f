package memoplugin

import (
	"log/slog"
	"sync"
	"time"
)

// RemindFunc is called when a memo's reminder fires.
type RemindFunc func(memo *Memo)

// Scheduler fires a one-shot reminder for each open memo with a
// RemindAt timestamp. Grounded on internal/scheduler/scheduler.go's
// timer-map design, simplified for one-shot rather than recurring
// schedules: a memo has at most one pending reminder, not a cron
// expression.
type Scheduler struct {
	logger *slog.Logger
	store  *Store
	remind RemindFunc

	mu      sync.Mutex
	timers  map[string]*time.Timer // memo ID -> timer
	running bool
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler backed by store, calling remind when
// a memo's reminder fires.
func NewScheduler(logger *slog.Logger, store *Store, remind RemindFunc) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		logger: logger,
		store:  store,
		remind: remind,
		timers: make(map[string]*time.Timer),
	}
}

// Start loads every open memo whose RemindAt falls within the next 365
// days and arms a timer for each, and immediately fires reminders for
// memos whose RemindAt has already passed (the catch-up case for
// reminders missed while stopped). Memos due further out are not armed
// by Start.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	now := time.Now()
	due, err := s.store.DueMemos(now.Add(365 * 24 * time.Hour))
	if err != nil {
		return err
	}

	for _, memo := range due {
		s.scheduleMemo(memo, now)
	}

	s.logger.Debug("memoplugin: scheduler started", "pending_reminders", len(due))
	return nil
}

// Stop cancels every pending timer and waits for in-flight reminder
// callbacks to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("memoplugin: scheduler stopped")
}

// Schedule arms (or rearms) a reminder timer for memo, replacing any
// existing one. A nil RemindAt or a completed memo cancels any pending
// timer instead.
func (s *Scheduler) Schedule(memo *Memo) {
	s.cancelTimer(memo.ID)

	if memo.RemindAt == nil || memo.Status == MemoStatusCompleted {
		return
	}
	s.scheduleMemo(memo, time.Now())
}

// Cancel removes any pending reminder timer for memoID.
func (s *Scheduler) Cancel(memoID string) {
	s.cancelTimer(memoID)
}

func (s *Scheduler) scheduleMemo(memo *Memo, now time.Time) {
	delay := memo.RemindAt.Sub(now)
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	if timer, exists := s.timers[memo.ID]; exists {
		timer.Stop()
	}

	id := memo.ID
	s.timers[id] = time.AfterFunc(delay, func() {
		s.onFire(id)
	})
}

func (s *Scheduler) onFire(memoID string) {
	s.wg.Add(1)
	defer s.wg.Done()

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	delete(s.timers, memoID)
	s.mu.Unlock()

	memo, err := s.store.GetMemo(memoID)
	if err != nil {
		s.logger.Error("memoplugin: failed to load memo for reminder", "id", memoID, "error", err)
		return
	}
	if memo.Status == MemoStatusCompleted {
		return
	}

	s.logger.Info("memoplugin: reminder fired", "memo_id", memo.ID, "owner", memo.OwnerUserID)
	if s.remind != nil {
		s.remind(memo)
	}
}

func (s *Scheduler) cancelTimer(memoID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, exists := s.timers[memoID]; exists {
		timer.Stop()
		delete(s.timers, memoID)
	}
}

// Stats reports scheduler counters: whether it is running and how many
// reminder timers are armed.
func (s *Scheduler) Stats() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]any{
		"running":       s.running,
		"active_timers": len(s.timers),
	}
}
