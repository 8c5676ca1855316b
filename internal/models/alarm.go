package models

import "time"

// AlarmKind 提醒类型
type AlarmKind string

const (
	AlarmExpiration AlarmKind = "expiration"
	AlarmReminder   AlarmKind = "reminder"
)

// Alarm 停车到期提醒，与会话一一对应
type Alarm struct {
	ID        int64     `json:"id" db:"id"`
	SessionID int64     `json:"session_id" db:"session_id"`
	FireAt    time.Time `json:"fire_at" db:"fire_at"`
	Message   string    `json:"message" db:"message"`
	Kind      AlarmKind `json:"kind" db:"kind"`
	Active    bool      `json:"active" db:"active"`
	Sent      bool      `json:"sent" db:"sent"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Due 是否到了触发时间且尚未发送
func (a *Alarm) Due(now time.Time) bool {
	return a.Active && !a.Sent && !a.FireAt.After(now)
}
