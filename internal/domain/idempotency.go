package domain

import "time"

// Idempotency represents a recorded result of a previously processed send,
// keyed by (user_id, path, key). It enables safe retries for message posts
// by returning the originally appended message key without re-executing the
// append.
type Idempotency struct {
	ID         string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	UserID     string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_path_key,priority:1"`
	Path       string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_path_key,priority:2"`
	Key        string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_path_key,priority:3"`
	MessageKey string    `gorm:"type:TEXT NOT NULL"`
	Status     int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt  time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt  time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
