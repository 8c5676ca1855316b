package models

import (
	"strings"
	"time"
)

// Vehicle 车辆
type Vehicle struct {
	ID            int64      `json:"id" db:"id"`
	OwnerID       int64      `json:"owner_id" db:"owner_id"`
	Plate         string     `json:"plate" db:"plate"`
	Brand         string     `json:"brand,omitempty" db:"brand"`
	Model         string     `json:"model,omitempty" db:"model"`
	Color         string     `json:"color,omitempty" db:"color"`
	LastLatitude  *float64   `json:"last_latitude,omitempty" db:"last_latitude"`
	LastLongitude *float64   `json:"last_longitude,omitempty" db:"last_longitude"`
	ParkedAt      *time.Time `json:"parked_at,omitempty" db:"parked_at"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// NormalizePlate 车牌去空格并转大写
func NormalizePlate(plate string) string {
	return strings.ToUpper(strings.Join(strings.Fields(plate), ""))
}
