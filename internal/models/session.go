package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SessionState 停车会话状态
type SessionState string

const (
	SessionActive    SessionState = "active"
	SessionFinished  SessionState = "finished"
	SessionExpired   SessionState = "expired"
	SessionCancelled SessionState = "cancelled"
)

// Terminal 是否为终止状态
func (s SessionState) Terminal() bool {
	return s == SessionFinished || s == SessionExpired || s == SessionCancelled
}

// ParkingSession 停车会话
// ZoneID 为空表示未匹配任何区域（免费停车）
type ParkingSession struct {
	ID             int64               `json:"id" db:"id"`
	VehicleID      int64               `json:"vehicle_id" db:"vehicle_id"`
	ZoneID         *int64              `json:"zone_id,omitempty" db:"zone_id"`
	Latitude       float64             `json:"latitude" db:"latitude"`
	Longitude      float64             `json:"longitude" db:"longitude"`
	Address        *Address            `json:"address,omitempty" db:"address"`
	StartTime      time.Time           `json:"start_time" db:"start_time"`
	EndTime        *time.Time          `json:"end_time,omitempty" db:"end_time"`
	State          SessionState        `json:"state" db:"state"`
	AmountDue      decimal.NullDecimal `json:"amount_due" db:"amount_due"`
	AlarmScheduled bool                `json:"alarm_scheduled" db:"alarm_scheduled"`
	CreatedAt      time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at" db:"updated_at"`
}

// Coordinate 起始坐标
func (s *ParkingSession) Coordinate() Coordinate {
	return Coordinate{Lat: s.Latitude, Lng: s.Longitude}
}

// IsActive 是否进行中
func (s *ParkingSession) IsActive() bool {
	return s.State == SessionActive
}

// Clone 深拷贝
func (s *ParkingSession) Clone() *ParkingSession {
	c := *s
	if s.ZoneID != nil {
		id := *s.ZoneID
		c.ZoneID = &id
	}
	if s.EndTime != nil {
		t := *s.EndTime
		c.EndTime = &t
	}
	if s.Address != nil {
		a := *s.Address
		c.Address = &a
	}
	return &c
}
