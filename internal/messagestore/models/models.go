package models

import (
	"time"
)

type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleBot
}

// ChatTurn is one stored message of a conversation. Rows are write-once.
type ChatTurn struct {
	ID        int64     `db:"id"`
	UserID    string    `db:"user_id"`
	Message   string    `db:"message"`
	Role      Role      `db:"role"`
	Timestamp time.Time `db:"created_at"`
}

type HistoryItem struct {
	Role      Role      `json:"role"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func (t ChatTurn) HistoryItem() HistoryItem {
	return HistoryItem{
		Role:      t.Role,
		Message:   t.Message,
		Timestamp: t.Timestamp,
	}
}
