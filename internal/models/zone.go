package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidSchedule 排班条目不合法
var ErrInvalidSchedule = errors.New("invalid zone schedule")

// ZoneKind 区域类型（展示用）
type ZoneKind string

const (
	ZoneFree       ZoneKind = "free"       // 无排班，免费停车
	ZonePaid       ZoneKind = "paid"       // 有排班，按时段收费
	ZoneProhibited ZoneKind = "prohibited" // 禁止停车
)

// Zone 停车区域
type Zone struct {
	ID          int64      `json:"id" db:"id"`
	Name        string     `json:"name" db:"name"`
	Description string     `json:"description,omitempty" db:"description"`
	Polygons    PolygonSet `json:"polygons" db:"polygons"`
	Color       string     `json:"color,omitempty" db:"color"`
	Prohibited  bool       `json:"prohibited" db:"prohibited"`
	Active      bool       `json:"active" db:"active"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// ZoneSchedule 区域某一星期的营业时段
// 每个 (zone_id, weekday) 至多一条；没有记录表示当天不开放
type ZoneSchedule struct {
	ID        int64     `json:"id" db:"id"`
	ZoneID    int64     `json:"zone_id" db:"zone_id"`
	Weekday   Weekday   `json:"weekday" db:"weekday"`
	OpenTime  TimeOfDay `json:"open_time" db:"open_time"`
	CloseTime TimeOfDay `json:"close_time" db:"close_time"`
	Enabled   bool      `json:"enabled" db:"enabled"`
}

// Contains open <= t < close
func (s ZoneSchedule) Contains(t TimeOfDay) bool {
	return s.OpenTime <= t && t < s.CloseTime
}

// Validate 星期在 1..7，且 00:00 <= open < close <= 24:00
func (s ZoneSchedule) Validate() error {
	switch {
	case !s.Weekday.Valid():
		return fmt.Errorf("zone %d: weekday %d: %w", s.ZoneID, int(s.Weekday), ErrInvalidSchedule)
	case s.OpenTime < 0 || s.CloseTime > EndOfDay:
		return fmt.Errorf("zone %d %s: time out of range: %w", s.ZoneID, s.Weekday, ErrInvalidSchedule)
	case s.OpenTime >= s.CloseTime:
		return fmt.Errorf("zone %d %s: open %s not before close %s: %w",
			s.ZoneID, s.Weekday, s.OpenTime, s.CloseTime, ErrInvalidSchedule)
	}
	return nil
}

// Catalog 区域、排班和费率的只读快照（用于缓存）
type Catalog struct {
	Zones     []*Zone        `json:"zones"`
	Schedules []ZoneSchedule `json:"schedules"`
	Tariffs   []TariffWindow `json:"tariffs"`
}
