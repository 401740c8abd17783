package models

import (
	"time"
)

// TransactionType is the closed set of log record kinds. Appends are
// validated against this set; projection ignores anything it does not know.
type TransactionType string

const (
	TxCreateSeed     TransactionType = "create_seed"
	TxEditContent    TransactionType = "edit_content"
	TxAddTag         TransactionType = "add_tag"
	TxRemoveTag      TransactionType = "remove_tag"
	TxSetCategory    TransactionType = "set_category"
	TxRemoveCategory TransactionType = "remove_category"
	TxSetMetadata    TransactionType = "set_metadata"
	TxRemoveMetadata TransactionType = "remove_metadata"
	TxAddFollowup    TransactionType = "add_followup" // legacy, pre-sprout
	TxCreation       TransactionType = "creation"     // generic creation for tags and sprouts
	TxRenameTag      TransactionType = "rename_tag"
	TxSetStatus      TransactionType = "set_status"
)

// KnownTransactionTypes lists every type the append path accepts.
var KnownTransactionTypes = []TransactionType{
	TxCreateSeed, TxEditContent, TxAddTag, TxRemoveTag,
	TxSetCategory, TxRemoveCategory, TxSetMetadata, TxRemoveMetadata,
	TxAddFollowup, TxCreation, TxRenameTag, TxSetStatus,
}

// Transaction is one immutable fact about an entity. Rows are append-only:
// never updated, never deleted. Ordering per owner is (created_at, seq).
type Transaction struct {
	ID           string          `gorm:"primaryKey" json:"id"`
	OwnerID      string          `gorm:"uniqueIndex:idx_owner_seq;not null" json:"owner_id"`
	Type         TransactionType `gorm:"index;not null" json:"transaction_type"`
	Data         string          `gorm:"type:text" json:"transaction_data"` // JSON, shape depends on Type
	AutomationID *string         `gorm:"index" json:"automation_id"`
	Seq          int64           `gorm:"uniqueIndex:idx_owner_seq" json:"seq"` // per-owner tiebreaker, assigned at append
	CreatedAt    time.Time       `gorm:"index" json:"created_at"`
}

// Seed is the identity row for a note/memory. Visible state lives entirely
// in the transaction log; this row only anchors ownership.
type Seed struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"index;not null" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// SproutType discriminates the consolidated sprout schema.
type SproutType string

const (
	SproutFollowUp SproutType = "follow_up"
	SproutMusing   SproutType = "musing"
)

// Sprout is the identity row for a follow-up or musing attached to a seed.
// Like seeds, its state is projected from its own transaction log.
type Sprout struct {
	ID         string     `gorm:"primaryKey" json:"id"`
	SeedID     string     `gorm:"index;not null" json:"seed_id"`
	UserID     string     `gorm:"index" json:"user_id"`
	SproutType SproutType `gorm:"index;not null" json:"sprout_type"`
	CreatedAt  time.Time  `json:"created_at"`

	Seed Seed `gorm:"foreignKey:SeedID" json:"seed,omitempty"`
}

// Tag identity row. Name and color are projected.
type Tag struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"index;not null" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Automation is the durable registry row backing a compiled-in automation.
// The row is looked up by Name at startup; ID is stable across restarts.
type Automation struct {
	ID            string    `gorm:"primaryKey" json:"id"`
	Name          string    `gorm:"unique;not null" json:"name"`
	Description   string    `gorm:"type:text" json:"description"`
	HandlerFnName string    `json:"handler_fn_name"`
	Enabled       bool      `gorm:"default:true" json:"enabled"`
	CreatedAt     time.Time `json:"created_at"`
}

// Job statuses.
const (
	JobStatusQueued  = "queued"
	JobStatusRunning = "running"
	JobStatusDone    = "done"
	JobStatusFailed  = "failed"
)

// Job is a queued re-processing request. Fire-and-forget from the
// dispatcher's side: completion shows up only as new transactions.
type Job struct {
	ID           string     `gorm:"primaryKey" json:"id"`
	SeedID       string     `gorm:"index;not null" json:"seed_id"`
	AutomationID string     `gorm:"index;not null" json:"automation_id"`
	UserID       string     `gorm:"index" json:"user_id"`
	Priority     int        `gorm:"default:1" json:"priority"` // 1-100
	Status       string     `gorm:"index;default:'queued'" json:"status"`
	Error        string     `gorm:"type:text" json:"error"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at"`
}

// CategoryChangeType classifies structural edits to the category tree.
type CategoryChangeType string

const (
	CategoryRename   CategoryChangeType = "rename"
	CategoryAddChild CategoryChangeType = "add_child"
	CategoryRemove   CategoryChangeType = "remove"
	CategoryMove     CategoryChangeType = "move"
)

// CategoryChange is a structural edit event fed to the pressure dispatcher.
// It is not persisted; producers emit batches of these per edit session.
type CategoryChange struct {
	Type       CategoryChangeType `json:"type"`
	CategoryID string             `json:"category_id"`
	OldPath    string             `json:"old_path,omitempty"`
	NewPath    string             `json:"new_path,omitempty"`
	ParentID   string             `json:"parent_id,omitempty"`
}
