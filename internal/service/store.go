package service

import (
	"context"
	"time"

	"github.com/langchou/parkmeter/internal/models"
)

// ZoneRepository 区域读取
type ZoneRepository interface {
	List(ctx context.Context) ([]*models.Zone, error)
}

// ScheduleRepository 排班读取
type ScheduleRepository interface {
	List(ctx context.Context) ([]models.ZoneSchedule, error)
}

// TariffRepository 费率读取
type TariffRepository interface {
	List(ctx context.Context) ([]models.TariffWindow, error)
}

// VehicleRepository 车辆读写
type VehicleRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Vehicle, error)
	UpdateLocation(ctx context.Context, id int64, c models.Coordinate, parkedAt time.Time) error
}

// SessionRepository 会话读写
type SessionRepository interface {
	Create(ctx context.Context, s *models.ParkingSession) error
	GetByID(ctx context.Context, id int64) (*models.ParkingSession, error)
	GetActiveByVehicle(ctx context.Context, vehicleID int64) (*models.ParkingSession, error)
	ListActiveByZone(ctx context.Context, zoneID int64) ([]*models.ParkingSession, error)
	ListByVehicle(ctx context.Context, vehicleID int64, limit, offset int) ([]*models.ParkingSession, error)
	Close(ctx context.Context, s *models.ParkingSession) error
	SetAlarmScheduled(ctx context.Context, id int64, scheduled bool) error
}

// AlarmRepository 提醒读写
type AlarmRepository interface {
	Create(ctx context.Context, a *models.Alarm) error
	DeactivateBySession(ctx context.Context, sessionID int64) (int64, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Alarm, error)
	MarkSent(ctx context.Context, id int64) error
}

// CatalogCache 目录快照的共享缓存
type CatalogCache interface {
	Get(ctx context.Context) (*models.Catalog, error)
	Set(ctx context.Context, catalog *models.Catalog) error
	Invalidate(ctx context.Context) error
}

// Geocoder 逆地理编码
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (*models.Address, error)
}

// SessionListener 会话变化通知
type SessionListener interface {
	NotifySession(s *models.ParkingSession)
}

// Notifier 提醒推送
type Notifier interface {
	NotifyAlarm(alarm *models.Alarm, s *models.ParkingSession) error
}
