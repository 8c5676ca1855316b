package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/langchou/parkmeter/internal/models"
)

// Memory 进程内存储，接口与 Postgres 仓库一致，用于 STORE=memory 和测试
type Memory struct {
	Zones     *MemoryZoneRepository
	Schedules *MemoryScheduleRepository
	Tariffs   *MemoryTariffRepository
	Vehicles  *MemoryVehicleRepository
	Sessions  *MemorySessionRepository
	Alarms    *MemoryAlarmRepository
}

// NewMemory 创建内存存储
func NewMemory() *Memory {
	return &Memory{
		Zones:     &MemoryZoneRepository{zones: make(map[int64]*models.Zone)},
		Schedules: &MemoryScheduleRepository{},
		Tariffs:   &MemoryTariffRepository{},
		Vehicles:  &MemoryVehicleRepository{vehicles: make(map[int64]*models.Vehicle)},
		Sessions:  &MemorySessionRepository{sessions: make(map[int64]*models.ParkingSession)},
		Alarms:    &MemoryAlarmRepository{alarms: make(map[int64]*models.Alarm)},
	}
}

// MemoryZoneRepository 内存区域仓库
type MemoryZoneRepository struct {
	mu    sync.RWMutex
	seq   int64
	zones map[int64]*models.Zone
}

// Create 创建区域
func (r *MemoryZoneRepository) Create(_ context.Context, zone *models.Zone) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	zone.ID = r.seq
	zone.CreatedAt = time.Now()
	zone.UpdatedAt = zone.CreatedAt
	c := *zone
	r.zones[zone.ID] = &c
	return nil
}

// GetByID 获取区域
func (r *MemoryZoneRepository) GetByID(_ context.Context, id int64) (*models.Zone, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	zone, ok := r.zones[id]
	if !ok {
		return nil, fmt.Errorf("get zone by id: %w", ErrNotFound)
	}
	c := *zone
	return &c, nil
}

// List 获取所有区域，按 ID 升序
func (r *MemoryZoneRepository) List(_ context.Context) ([]*models.Zone, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	zones := make([]*models.Zone, 0, len(r.zones))
	for _, z := range r.zones {
		c := *z
		zones = append(zones, &c)
	}
	sort.Slice(zones, func(i, j int) bool { return zones[i].ID < zones[j].ID })
	return zones, nil
}

// MemoryScheduleRepository 内存排班仓库
type MemoryScheduleRepository struct {
	mu        sync.RWMutex
	seq       int64
	schedules []models.ZoneSchedule
}

// Create 创建排班，(zone_id, weekday) 重复时返回 ErrDuplicate
func (r *MemoryScheduleRepository) Create(_ context.Context, s *models.ZoneSchedule) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("insert zone schedule: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.schedules {
		if e.ZoneID == s.ZoneID && e.Weekday == s.Weekday {
			return fmt.Errorf("insert zone schedule: %w", ErrDuplicate)
		}
	}
	r.seq++
	s.ID = r.seq
	r.schedules = append(r.schedules, *s)
	return nil
}

// List 获取全部排班
func (r *MemoryScheduleRepository) List(_ context.Context) ([]models.ZoneSchedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.ZoneSchedule, len(r.schedules))
	copy(out, r.schedules)
	return out, nil
}

// MemoryTariffRepository 内存费率仓库
type MemoryTariffRepository struct {
	mu      sync.RWMutex
	seq     int64
	windows []models.TariffWindow
}

// Create 创建费率窗口
func (r *MemoryTariffRepository) Create(_ context.Context, w *models.TariffWindow) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	w.ID = r.seq
	r.windows = append(r.windows, *w)
	return nil
}

// List 获取全部费率窗口
func (r *MemoryTariffRepository) List(_ context.Context) ([]models.TariffWindow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.TariffWindow, len(r.windows))
	copy(out, r.windows)
	return out, nil
}

// MemoryVehicleRepository 内存车辆仓库
type MemoryVehicleRepository struct {
	mu       sync.RWMutex
	seq      int64
	vehicles map[int64]*models.Vehicle
}

// Create 创建车辆，车牌重复返回 ErrDuplicate
func (r *MemoryVehicleRepository) Create(_ context.Context, v *models.Vehicle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	v.Plate = models.NormalizePlate(v.Plate)
	for _, e := range r.vehicles {
		if e.Plate == v.Plate {
			return fmt.Errorf("insert vehicle: %w", ErrDuplicate)
		}
	}
	r.seq++
	v.ID = r.seq
	v.CreatedAt = time.Now()
	v.UpdatedAt = v.CreatedAt
	c := *v
	r.vehicles[v.ID] = &c
	return nil
}

// GetByID 获取车辆
func (r *MemoryVehicleRepository) GetByID(_ context.Context, id int64) (*models.Vehicle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.vehicles[id]
	if !ok {
		return nil, fmt.Errorf("get vehicle by id: %w", ErrNotFound)
	}
	c := *v
	return &c, nil
}

// UpdateLocation 记录车辆最后停放位置
func (r *MemoryVehicleRepository) UpdateLocation(_ context.Context, id int64, c models.Coordinate, parkedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.vehicles[id]
	if !ok {
		return fmt.Errorf("update vehicle location: %w", ErrNotFound)
	}
	lat, lng := c.Lat, c.Lng
	v.LastLatitude = &lat
	v.LastLongitude = &lng
	v.ParkedAt = &parkedAt
	v.UpdatedAt = time.Now()
	return nil
}

// MemorySessionRepository 内存会话仓库
type MemorySessionRepository struct {
	mu       sync.RWMutex
	seq      int64
	sessions map[int64]*models.ParkingSession
}

// Create 创建会话，同一车辆只允许一个进行中的会话
func (r *MemorySessionRepository) Create(_ context.Context, s *models.ParkingSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s.State == models.SessionActive {
		for _, e := range r.sessions {
			if e.VehicleID == s.VehicleID && e.IsActive() {
				return fmt.Errorf("insert parking session: %w", ErrActiveSessionExists)
			}
		}
	}
	r.seq++
	s.ID = r.seq
	s.CreatedAt = time.Now()
	s.UpdatedAt = s.CreatedAt
	r.sessions[s.ID] = s.Clone()
	return nil
}

// GetByID 获取会话
func (r *MemorySessionRepository) GetByID(_ context.Context, id int64) (*models.ParkingSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("get parking session by id: %w", ErrNotFound)
	}
	return s.Clone(), nil
}

// GetActiveByVehicle 获取车辆进行中的会话，没有时返回 ErrNotFound
func (r *MemorySessionRepository) GetActiveByVehicle(_ context.Context, vehicleID int64) (*models.ParkingSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.sessions {
		if s.VehicleID == vehicleID && s.IsActive() {
			return s.Clone(), nil
		}
	}
	return nil, fmt.Errorf("get active parking session: %w", ErrNotFound)
}

// ListActiveByZone 获取区域内进行中的会话
func (r *MemorySessionRepository) ListActiveByZone(_ context.Context, zoneID int64) ([]*models.ParkingSession, error) {
	return r.filter(func(s *models.ParkingSession) bool {
		return s.IsActive() && s.ZoneID != nil && *s.ZoneID == zoneID
	}, func(a, b *models.ParkingSession) bool { return a.ID < b.ID }), nil
}

// ListByVehicle 车辆的会话历史，最新的在前
func (r *MemorySessionRepository) ListByVehicle(_ context.Context, vehicleID int64, limit, offset int) ([]*models.ParkingSession, error) {
	all := r.filter(func(s *models.ParkingSession) bool {
		return s.VehicleID == vehicleID
	}, func(a, b *models.ParkingSession) bool {
		if a.StartTime.Equal(b.StartTime) {
			return a.ID > b.ID
		}
		return a.StartTime.After(b.StartTime)
	})

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

// Close 结束会话，只对进行中的会话生效
func (r *MemorySessionRepository) Close(_ context.Context, s *models.ParkingSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.sessions[s.ID]
	if !ok || !cur.IsActive() {
		return fmt.Errorf("close parking session: %w", ErrNotFound)
	}
	cur.EndTime = s.EndTime
	cur.State = s.State
	cur.AmountDue = s.AmountDue
	cur.UpdatedAt = time.Now()
	r.sessions[s.ID] = cur.Clone()
	s.UpdatedAt = cur.UpdatedAt
	return nil
}

// SetAlarmScheduled 更新提醒标记
func (r *MemorySessionRepository) SetAlarmScheduled(_ context.Context, id int64, scheduled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return fmt.Errorf("set alarm scheduled: %w", ErrNotFound)
	}
	s.AlarmScheduled = scheduled
	s.UpdatedAt = time.Now()
	return nil
}

func (r *MemorySessionRepository) filter(keep func(*models.ParkingSession) bool, less func(a, b *models.ParkingSession) bool) []*models.ParkingSession {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.ParkingSession
	for _, s := range r.sessions {
		if keep(s) {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// MemoryAlarmRepository 内存提醒仓库
type MemoryAlarmRepository struct {
	mu     sync.RWMutex
	seq    int64
	alarms map[int64]*models.Alarm
}

// Create 创建提醒，同一会话只允许一个有效提醒
func (r *MemoryAlarmRepository) Create(_ context.Context, a *models.Alarm) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a.Active {
		for _, e := range r.alarms {
			if e.SessionID == a.SessionID && e.Active {
				return fmt.Errorf("insert alarm: %w", ErrDuplicate)
			}
		}
	}
	r.seq++
	a.ID = r.seq
	a.CreatedAt = time.Now()
	c := *a
	r.alarms[a.ID] = &c
	return nil
}

// GetActiveBySession 会话当前有效的提醒
func (r *MemoryAlarmRepository) GetActiveBySession(_ context.Context, sessionID int64) (*models.Alarm, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, a := range r.alarms {
		if a.SessionID == sessionID && a.Active {
			c := *a
			return &c, nil
		}
	}
	return nil, fmt.Errorf("get active alarm: %w", ErrNotFound)
}

// DeactivateBySession 停用会话的提醒
func (r *MemoryAlarmRepository) DeactivateBySession(_ context.Context, sessionID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, a := range r.alarms {
		if a.SessionID == sessionID && a.Active {
			a.Active = false
			n++
		}
	}
	return n, nil
}

// ListDue 已到触发时间、尚未发送的提醒
func (r *MemoryAlarmRepository) ListDue(_ context.Context, now time.Time, limit int) ([]*models.Alarm, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Alarm
	for _, a := range r.alarms {
		if a.Due(now) {
			c := *a
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FireAt.Equal(out[j].FireAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].FireAt.Before(out[j].FireAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkSent 标记为已发送并停用
func (r *MemoryAlarmRepository) MarkSent(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.alarms[id]
	if !ok || a.Sent {
		return fmt.Errorf("mark alarm sent: %w", ErrNotFound)
	}
	a.Sent = true
	a.Active = false
	return nil
}
