package memoplugin

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/vitaelegy/amadeus-bus/internal/bus"
	"github.com/vitaelegy/amadeus-bus/internal/pluginhost"
)

const pluginID = "MemoStore"

// Request topics consumed by this plugin, and the reply/event topics it
// emits.
const (
	topicMemoCreate   bus.Topic = "system.memo.create"
	topicMemoUpdate   bus.Topic = "system.memo.update"
	topicMemoComplete bus.Topic = "system.memo.complete"
	topicMemoDelete   bus.Topic = "system.memo.delete"
	topicMemoList     bus.Topic = "system.memo.list"

	topicMemoCreated  bus.Topic = "system.memo.created"
	topicMemoListRepl bus.Topic = "system.memo.list.reply"
	topicMemoRemind   bus.Topic = "system.memo.remind"

	topicScheduleAdd   bus.Topic = "system.schedule.add"
	topicScheduleAdded bus.Topic = "system.schedule.added"

	topicUserResolve   bus.Topic = "system.user.resolve"
	topicUserResolved  bus.Topic = "system.user.resolved"
	topicUserGrantRole bus.Topic = "system.user.grant_role"
)

// replyToMetadataKey names the metadata field a requester sets to have
// the reply directed back to it instead of broadcast.
const replyToMetadataKey = "reply_to"

// Plugin is a SQLite-backed memo/user store with reminder scheduling,
// wired to the bus as an ordinary plugin rather than part of its core.
// Grounded on internal/scheduler/scheduler.go's lifecycle plus
// internal/memory's storage-plugin shape.
type Plugin struct {
	pluginhost.BasePlugin

	dbPath string
	logger *slog.Logger

	store     *Store
	scheduler *Scheduler
	msgCtx    *bus.MessageContext
}

// New constructs the memo plugin. dbPath is the SQLite database file it
// opens in Init (the config's memo.db_path).
func New(dbPath string, logger *slog.Logger) *Plugin {
	if logger == nil {
		logger = slog.Default()
	}
	meta := pluginhost.NewMetadata(pluginID, "Memo persistence and reminder scheduling", "1.0.0")
	return &Plugin{
		BasePlugin: pluginhost.NewBasePlugin(meta),
		dbPath:     dbPath,
		logger:     logger,
	}
}

// Init opens the SQLite store and runs its migration.
func (p *Plugin) Init() error {
	store, err := NewStore(p.dbPath)
	if err != nil {
		return err
	}
	p.store = store
	p.scheduler = NewScheduler(p.logger, p.store, p.onRemind)
	return nil
}

// SetupMessaging subscribes to every request topic this plugin answers.
func (p *Plugin) SetupMessaging(dc *bus.DistributionCenter, ingress chan<- bus.Message) (*bus.MessageContext, error) {
	ctx := bus.NewMessageContext(dc, p.ID(), p.Metadata().UID, ingress)
	p.msgCtx = ctx

	topics := []bus.Topic{
		topicMemoCreate, topicMemoUpdate, topicMemoComplete, topicMemoDelete, topicMemoList,
		topicScheduleAdd, topicUserResolve, topicUserGrantRole,
	}
	for _, topic := range topics {
		ch := ctx.Subscribe(topic)
		go p.handleTopic(topic, ch)
	}
	return ctx, nil
}

// Start arms reminder timers for open memos that already have one set,
// within the window Scheduler.Start loads.
func (p *Plugin) Start() error {
	return p.scheduler.Start()
}

// Stop halts the scheduler and closes the store.
func (p *Plugin) Stop() error {
	p.scheduler.Stop()
	return p.store.Close()
}

func (p *Plugin) handleTopic(topic bus.Topic, ch <-chan bus.Message) {
	for msg := range ch {
		p.dispatch(topic, msg)
	}
}

func (p *Plugin) dispatch(topic bus.Topic, msg bus.Message) {
	switch topic {
	case topicMemoCreate:
		p.handleCreate(msg)
	case topicMemoUpdate:
		p.handleUpdate(msg)
	case topicMemoComplete:
		p.handleComplete(msg)
	case topicMemoDelete:
		p.handleDelete(msg)
	case topicMemoList:
		p.handleList(msg)
	case topicScheduleAdd:
		p.handleScheduleAdd(msg)
	case topicUserResolve:
		p.handleUserResolve(msg)
	case topicUserGrantRole:
		p.handleGrantRole(msg)
	}
}

func (p *Plugin) replyTo(incoming bus.Message) *string {
	if to, ok := incoming.Metadata[replyToMetadataKey]; ok && to != "" {
		return &to
	}
	return nil
}

func (p *Plugin) publish(topic bus.Topic, payload any, recipient *string) {
	body, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("memoplugin: encode reply failed", "topic", topic, "error", err)
		return
	}
	out := bus.New(topic, body)
	if recipient != nil {
		out = out.WithRecipient(*recipient)
	}
	if err := p.msgCtx.Send(out); err != nil {
		p.logger.Error("memoplugin: send failed", "topic", topic, "error", err)
	}
}

func (p *Plugin) handleCreate(msg bus.Message) {
	var req CreateMemoRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		p.logger.Error("memoplugin: bad create request", "error", err)
		return
	}
	memo := &Memo{
		OwnerUserID: req.OwnerUserID,
		Title:       req.Title,
		Body:        req.Body,
		RemindAt:    req.RemindAt,
	}
	if err := p.store.CreateMemo(memo); err != nil {
		p.logger.Error("memoplugin: create memo failed", "error", err)
		return
	}
	if memo.RemindAt != nil {
		p.scheduler.Schedule(memo)
	}
	p.publish(topicMemoCreated, memo, p.replyTo(msg))
}

func (p *Plugin) handleUpdate(msg bus.Message) {
	var req UpdateMemoRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		p.logger.Error("memoplugin: bad update request", "error", err)
		return
	}
	memo, err := p.store.UpdateMemo(req)
	if err != nil {
		p.logger.Error("memoplugin: update memo failed", "id", req.ID, "error", err)
		return
	}
	p.scheduler.Schedule(memo)
	p.publish(topicMemoCreated, memo, p.replyTo(msg))
}

func (p *Plugin) handleComplete(msg bus.Message) {
	var req CompleteMemoRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		p.logger.Error("memoplugin: bad complete request", "error", err)
		return
	}
	memo, err := p.store.CompleteMemo(req.ID)
	if err != nil {
		p.logger.Error("memoplugin: complete memo failed", "id", req.ID, "error", err)
		return
	}
	p.scheduler.Cancel(memo.ID)
	p.publish(topicMemoCreated, memo, p.replyTo(msg))
}

func (p *Plugin) handleDelete(msg bus.Message) {
	var req DeleteMemoRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		p.logger.Error("memoplugin: bad delete request", "error", err)
		return
	}
	p.scheduler.Cancel(req.ID)
	if err := p.store.DeleteMemo(req.ID); err != nil {
		p.logger.Error("memoplugin: delete memo failed", "id", req.ID, "error", err)
	}
}

func (p *Plugin) handleList(msg bus.Message) {
	var req ListMemoRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		p.logger.Error("memoplugin: bad list request", "error", err)
		return
	}
	memos, err := p.store.ListMemos(req.OwnerUserID, req.IncludeDone)
	if err != nil {
		p.logger.Error("memoplugin: list memos failed", "owner", req.OwnerUserID, "error", err)
		return
	}
	p.publish(topicMemoListRepl, memos, p.replyTo(msg))
}

// scheduleAddRequest is the payload shape expected on
// system.schedule.add: an ad hoc request to (re)arm a reminder for an
// existing memo at a specific time, independent of memo.update.
type scheduleAddRequest struct {
	MemoID   string    `json:"memo_id"`
	RemindAt time.Time `json:"remind_at"`
}

func (p *Plugin) handleScheduleAdd(msg bus.Message) {
	var req scheduleAddRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		p.logger.Error("memoplugin: bad schedule.add request", "error", err)
		return
	}
	memo, err := p.store.UpdateMemo(UpdateMemoRequest{ID: req.MemoID, RemindAt: &req.RemindAt})
	if err != nil {
		p.logger.Error("memoplugin: schedule.add failed", "memo_id", req.MemoID, "error", err)
		return
	}
	p.scheduler.Schedule(memo)
	p.publish(topicScheduleAdded, memo, p.replyTo(msg))
}

func (p *Plugin) handleUserResolve(msg bus.Message) {
	var req ResolveUserRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		p.logger.Error("memoplugin: bad user.resolve request", "error", err)
		return
	}
	user, err := p.store.ResolveUser(req.Platform, req.PlatformUserID, req.Name)
	if err != nil {
		p.logger.Error("memoplugin: resolve user failed", "error", err)
		return
	}
	p.publish(topicUserResolved, user, p.replyTo(msg))
}

func (p *Plugin) handleGrantRole(msg bus.Message) {
	var req GrantRoleRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		p.logger.Error("memoplugin: bad grant_role request", "error", err)
		return
	}
	if err := p.store.GrantRole(req.UserID, req.Role); err != nil {
		p.logger.Error("memoplugin: grant role failed", "user_id", req.UserID, "role", req.Role, "error", err)
	}
}

func (p *Plugin) onRemind(memo *Memo) {
	p.publish(topicMemoRemind, memo, nil)
}
