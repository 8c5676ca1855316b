package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/langchou/parkmeter/internal/models"
)

// TariffRepository 时段费率仓库
type TariffRepository struct {
	db *DB
}

// NewTariffRepository 创建费率仓库
func NewTariffRepository(db *DB) *TariffRepository {
	return &TariffRepository{db: db}
}

// Create 创建费率窗口
func (r *TariffRepository) Create(ctx context.Context, w *models.TariffWindow) error {
	query := `
		INSERT INTO tariff_windows (zone_id, name, start_time, end_time, rate_per_hour, description, enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err := r.db.Pool.QueryRow(ctx, query,
		w.ZoneID,
		w.Name,
		toPgTime(w.StartTime),
		toPgTime(w.EndTime),
		w.RatePerHour,
		w.Description,
		w.Enabled,
	).Scan(&w.ID)
	if err != nil {
		return fmt.Errorf("insert tariff window: %w", mapError(err))
	}
	return nil
}

// List 获取全部费率窗口，按开始时间升序
func (r *TariffRepository) List(ctx context.Context) ([]models.TariffWindow, error) {
	query := `
		SELECT id, zone_id, name, start_time, end_time, rate_per_hour, description, enabled
		FROM tariff_windows ORDER BY start_time, id
	`
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tariff windows: %w", err)
	}
	defer rows.Close()

	var windows []models.TariffWindow
	for rows.Next() {
		var (
			w          models.TariffWindow
			start, end pgtype.Time
		)
		err := rows.Scan(&w.ID, &w.ZoneID, &w.Name, &start, &end, &w.RatePerHour, &w.Description, &w.Enabled)
		if err != nil {
			return nil, fmt.Errorf("scan tariff window: %w", err)
		}
		w.StartTime = fromPgTime(start)
		w.EndTime = fromPgTime(end)
		windows = append(windows, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tariff windows: %w", err)
	}
	return windows, nil
}
