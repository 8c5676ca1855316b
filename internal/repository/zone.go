package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/langchou/parkmeter/internal/models"
)

const zoneColumns = `id, name, description, polygons, color, prohibited, active, created_at, updated_at`

// ZoneRepository 区域数据仓库
type ZoneRepository struct {
	db *DB
}

// NewZoneRepository 创建区域仓库
func NewZoneRepository(db *DB) *ZoneRepository {
	return &ZoneRepository{db: db}
}

// Create 创建区域
func (r *ZoneRepository) Create(ctx context.Context, zone *models.Zone) error {
	query := `
		INSERT INTO zones (name, description, polygons, color, prohibited, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	err := r.db.Pool.QueryRow(ctx, query,
		zone.Name,
		zone.Description,
		zone.Polygons,
		zone.Color,
		zone.Prohibited,
		zone.Active,
	).Scan(&zone.ID, &zone.CreatedAt, &zone.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert zone: %w", mapError(err))
	}
	return nil
}

// GetByID 获取区域（包括未启用的）
func (r *ZoneRepository) GetByID(ctx context.Context, id int64) (*models.Zone, error) {
	query := `SELECT ` + zoneColumns + ` FROM zones WHERE id = $1`
	zone, err := scanZone(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get zone by id: %w", mapError(err))
	}
	return zone, nil
}

// List 获取所有区域，按 ID 升序
func (r *ZoneRepository) List(ctx context.Context) ([]*models.Zone, error) {
	query := `SELECT ` + zoneColumns + ` FROM zones ORDER BY id`
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list zones: %w", err)
	}
	defer rows.Close()

	var zones []*models.Zone
	for rows.Next() {
		zone, err := scanZone(rows)
		if err != nil {
			return nil, fmt.Errorf("scan zone: %w", err)
		}
		zones = append(zones, zone)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list zones: %w", err)
	}
	return zones, nil
}

func scanZone(row pgx.Row) (*models.Zone, error) {
	zone := &models.Zone{}
	err := row.Scan(
		&zone.ID,
		&zone.Name,
		&zone.Description,
		&zone.Polygons,
		&zone.Color,
		&zone.Prohibited,
		&zone.Active,
		&zone.CreatedAt,
		&zone.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return zone, nil
}
