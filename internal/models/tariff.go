package models

import "github.com/shopspring/decimal"

// TariffWindow 时段费率
// ZoneID 为空表示全局费率，区域没有专属费率时使用
type TariffWindow struct {
	ID          int64           `json:"id" db:"id"`
	ZoneID      *int64          `json:"zone_id,omitempty" db:"zone_id"`
	Name        string          `json:"name" db:"name"`
	StartTime   TimeOfDay       `json:"start_time" db:"start_time"`
	EndTime     TimeOfDay       `json:"end_time" db:"end_time"`
	RatePerHour decimal.Decimal `json:"rate_per_hour" db:"rate_per_hour"`
	Description string          `json:"description,omitempty" db:"description"`
	Enabled     bool            `json:"enabled" db:"enabled"`
}

// Contains [start, end)；end <= start 视为跨午夜的窗口
func (w TariffWindow) Contains(t TimeOfDay) bool {
	if w.EndTime > w.StartTime {
		return w.StartTime <= t && t < w.EndTime
	}
	return t >= w.StartTime || t < w.EndTime
}
