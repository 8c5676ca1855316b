package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/langchou/parkmeter/internal/models"
)

// VehicleRepository 车辆数据仓库
type VehicleRepository struct {
	db *DB
}

// NewVehicleRepository 创建车辆仓库
func NewVehicleRepository(db *DB) *VehicleRepository {
	return &VehicleRepository{db: db}
}

// Create 创建车辆，车牌统一为大写；车牌重复返回 ErrDuplicate
func (r *VehicleRepository) Create(ctx context.Context, v *models.Vehicle) error {
	v.Plate = models.NormalizePlate(v.Plate)
	query := `
		INSERT INTO vehicles (owner_id, plate, brand, model, color)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`
	err := r.db.Pool.QueryRow(ctx, query, v.OwnerID, v.Plate, v.Brand, v.Model, v.Color).
		Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert vehicle: %w", mapError(err))
	}
	return nil
}

// GetByID 获取车辆
func (r *VehicleRepository) GetByID(ctx context.Context, id int64) (*models.Vehicle, error) {
	query := `
		SELECT id, owner_id, plate, brand, model, color,
			last_latitude, last_longitude, parked_at, created_at, updated_at
		FROM vehicles WHERE id = $1
	`
	v := &models.Vehicle{}
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&v.ID,
		&v.OwnerID,
		&v.Plate,
		&v.Brand,
		&v.Model,
		&v.Color,
		&v.LastLatitude,
		&v.LastLongitude,
		&v.ParkedAt,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("get vehicle by id: %w", mapError(err))
	}
	return v, nil
}

// UpdateLocation 记录车辆最后停放位置
func (r *VehicleRepository) UpdateLocation(ctx context.Context, id int64, c models.Coordinate, parkedAt time.Time) error {
	query := `
		UPDATE vehicles SET last_latitude = $2, last_longitude = $3, parked_at = $4, updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.db.Pool.Exec(ctx, query, id, c.Lat, c.Lng, parkedAt)
	if err != nil {
		return fmt.Errorf("update vehicle location: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update vehicle location: %w", ErrNotFound)
	}
	return nil
}
