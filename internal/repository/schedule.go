package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/langchou/parkmeter/internal/models"
)

// ScheduleRepository 区域排班仓库
type ScheduleRepository struct {
	db *DB
}

// NewScheduleRepository 创建排班仓库
func NewScheduleRepository(db *DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// Create 创建排班，(zone_id, weekday) 重复时返回 ErrDuplicate
func (r *ScheduleRepository) Create(ctx context.Context, s *models.ZoneSchedule) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("insert zone schedule: %w", err)
	}

	query := `
		INSERT INTO zone_schedules (zone_id, weekday, open_time, close_time, enabled)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	err := r.db.Pool.QueryRow(ctx, query,
		s.ZoneID,
		int16(s.Weekday),
		toPgTime(s.OpenTime),
		toPgTime(s.CloseTime),
		s.Enabled,
	).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("insert zone schedule: %w", mapError(err))
	}
	return nil
}

// List 获取全部排班
func (r *ScheduleRepository) List(ctx context.Context) ([]models.ZoneSchedule, error) {
	query := `
		SELECT id, zone_id, weekday, open_time, close_time, enabled
		FROM zone_schedules ORDER BY zone_id, weekday
	`
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list zone schedules: %w", err)
	}
	defer rows.Close()

	var schedules []models.ZoneSchedule
	for rows.Next() {
		var (
			s               models.ZoneSchedule
			weekday         int16
			openAt, closeAt pgtype.Time
		)
		if err := rows.Scan(&s.ID, &s.ZoneID, &weekday, &openAt, &closeAt, &s.Enabled); err != nil {
			return nil, fmt.Errorf("scan zone schedule: %w", err)
		}
		s.Weekday = models.Weekday(weekday)
		s.OpenTime = fromPgTime(openAt)
		s.CloseTime = fromPgTime(closeAt)
		schedules = append(schedules, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list zone schedules: %w", err)
	}
	return schedules, nil
}
