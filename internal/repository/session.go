package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/langchou/parkmeter/internal/models"
)

const sessionColumns = `
	id, vehicle_id, zone_id, latitude, longitude, address, start_time, end_time,
	state, amount_due, alarm_scheduled, created_at, updated_at`

// SessionRepository 停车会话仓库
type SessionRepository struct {
	db *DB
}

// NewSessionRepository 创建会话仓库
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create 创建会话
// 车辆已有进行中的会话时由部分唯一索引拒绝，返回 ErrActiveSessionExists
func (r *SessionRepository) Create(ctx context.Context, s *models.ParkingSession) error {
	query := `
		INSERT INTO parking_sessions (
			vehicle_id, zone_id, latitude, longitude, address, start_time, state, alarm_scheduled
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`
	err := r.db.Pool.QueryRow(ctx, query,
		s.VehicleID,
		s.ZoneID,
		s.Latitude,
		s.Longitude,
		s.Address,
		s.StartTime,
		s.State,
		s.AlarmScheduled,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert parking session: %w", mapError(err))
	}
	return nil
}

// GetByID 获取会话
func (r *SessionRepository) GetByID(ctx context.Context, id int64) (*models.ParkingSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM parking_sessions WHERE id = $1`
	s, err := scanSession(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get parking session by id: %w", mapError(err))
	}
	return s, nil
}

// GetActiveByVehicle 获取车辆进行中的会话，没有时返回 ErrNotFound
func (r *SessionRepository) GetActiveByVehicle(ctx context.Context, vehicleID int64) (*models.ParkingSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM parking_sessions WHERE vehicle_id = $1 AND state = 'active'`
	s, err := scanSession(r.db.Pool.QueryRow(ctx, query, vehicleID))
	if err != nil {
		return nil, fmt.Errorf("get active parking session: %w", mapError(err))
	}
	return s, nil
}

// ListActiveByZone 获取区域内进行中的会话
func (r *SessionRepository) ListActiveByZone(ctx context.Context, zoneID int64) ([]*models.ParkingSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM parking_sessions WHERE zone_id = $1 AND state = 'active' ORDER BY id`
	return r.list(ctx, query, zoneID)
}

// ListByVehicle 车辆的会话历史，最新的在前
func (r *SessionRepository) ListByVehicle(ctx context.Context, vehicleID int64, limit, offset int) ([]*models.ParkingSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM parking_sessions WHERE vehicle_id = $1 ORDER BY start_time DESC, id DESC LIMIT $2 OFFSET $3`
	return r.list(ctx, query, vehicleID, limit, offset)
}

// Close 结束会话，只对进行中的会话生效
// 会话已被其他调用结束时返回 ErrNotFound
func (r *SessionRepository) Close(ctx context.Context, s *models.ParkingSession) error {
	query := `
		UPDATE parking_sessions SET
			end_time = $2,
			state = $3,
			amount_due = $4,
			updated_at = NOW()
		WHERE id = $1 AND state = 'active'
		RETURNING updated_at
	`
	err := r.db.Pool.QueryRow(ctx, query, s.ID, s.EndTime, s.State, s.AmountDue).Scan(&s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("close parking session: %w", mapError(err))
	}
	return nil
}

// SetAlarmScheduled 更新提醒标记
func (r *SessionRepository) SetAlarmScheduled(ctx context.Context, id int64, scheduled bool) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE parking_sessions SET alarm_scheduled = $2, updated_at = NOW() WHERE id = $1`,
		id, scheduled,
	)
	if err != nil {
		return fmt.Errorf("set alarm scheduled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set alarm scheduled: %w", ErrNotFound)
	}
	return nil
}

func (r *SessionRepository) list(ctx context.Context, query string, args ...any) ([]*models.ParkingSession, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list parking sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.ParkingSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan parking session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list parking sessions: %w", err)
	}
	return sessions, nil
}

func scanSession(row pgx.Row) (*models.ParkingSession, error) {
	s := &models.ParkingSession{}
	err := row.Scan(
		&s.ID,
		&s.VehicleID,
		&s.ZoneID,
		&s.Latitude,
		&s.Longitude,
		&s.Address,
		&s.StartTime,
		&s.EndTime,
		&s.State,
		&s.AmountDue,
		&s.AlarmScheduled,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}
