// Package memoplugin implements a SQLite-backed memo and user store with
// reminder scheduling. It is a *client* of the bus, not part of its
// core. Grounded on internal/scheduler/{types,store,scheduler}.go and
// internal/memory/sqlite.go.
package memoplugin

import "time"

// MemoStatus tracks a memo's lifecycle.
type MemoStatus string

const (
	MemoStatusOpen      MemoStatus = "open"
	MemoStatusCompleted MemoStatus = "completed"
)

// Memo is a single reminder/note owned by a user.
type Memo struct {
	ID          string     `json:"id"`
	OwnerUserID string     `json:"owner_user_id"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	Status      MemoStatus `json:"status"`
	RemindAt    *time.Time `json:"remind_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// User identifies a person addressable from an external platform (the
// `platform`/`platform_user_id` pair), matching the UserID/PlatformId
// split in original_source/amadeus/src/core/user.rs.
type User struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Platform       string `json:"platform"`
	PlatformUserID string `json:"platform_user_id"`
}

// CreateMemoRequest is the payload shape expected on system.memo.create.
type CreateMemoRequest struct {
	OwnerUserID string     `json:"owner_user_id"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	RemindAt    *time.Time `json:"remind_at,omitempty"`
}

// UpdateMemoRequest is the payload shape expected on system.memo.update.
type UpdateMemoRequest struct {
	ID       string     `json:"id"`
	Title    *string    `json:"title,omitempty"`
	Body     *string    `json:"body,omitempty"`
	RemindAt *time.Time `json:"remind_at,omitempty"`
}

// CompleteMemoRequest is the payload shape expected on
// system.memo.complete.
type CompleteMemoRequest struct {
	ID string `json:"id"`
}

// DeleteMemoRequest is the payload shape expected on system.memo.delete.
type DeleteMemoRequest struct {
	ID string `json:"id"`
}

// ListMemoRequest is the payload shape expected on system.memo.list.
type ListMemoRequest struct {
	OwnerUserID string `json:"owner_user_id"`
	IncludeDone bool   `json:"include_done"`
}

// ResolveUserRequest is the payload shape expected on
// system.user.resolve.
type ResolveUserRequest struct {
	Platform       string `json:"platform"`
	PlatformUserID string `json:"platform_user_id"`
	Name           string `json:"name,omitempty"`
}

// GrantRoleRequest is the payload shape expected on
// system.user.grant_role.
type GrantRoleRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}
