package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/langchou/parkmeter/internal/models"
)

// Seed 初始数据文件格式
type Seed struct {
	Zones    []SeedZone            `json:"zones"`
	Tariffs  []models.TariffWindow `json:"tariffs"`
	Vehicles []models.Vehicle      `json:"vehicles"`
}

// SeedZone 区域及其排班和专属费率
type SeedZone struct {
	models.Zone
	Schedules []models.ZoneSchedule `json:"schedules"`
	Tariffs   []models.TariffWindow `json:"tariffs"`
}

// SeedTarget 写入初始数据的仓库集合
type SeedTarget struct {
	Zones interface {
		Create(ctx context.Context, zone *models.Zone) error
		List(ctx context.Context) ([]*models.Zone, error)
	}
	Schedules interface {
		Create(ctx context.Context, s *models.ZoneSchedule) error
	}
	Tariffs interface {
		Create(ctx context.Context, w *models.TariffWindow) error
	}
	Vehicles interface {
		Create(ctx context.Context, v *models.Vehicle) error
	}
}

// SeedTarget 内存存储的写入目标
func (m *Memory) SeedTarget() SeedTarget {
	return SeedTarget{Zones: m.Zones, Schedules: m.Schedules, Tariffs: m.Tariffs, Vehicles: m.Vehicles}
}

// PostgresSeedTarget Postgres 的写入目标
func PostgresSeedTarget(db *DB) SeedTarget {
	return SeedTarget{
		Zones:     NewZoneRepository(db),
		Schedules: NewScheduleRepository(db),
		Tariffs:   NewTariffRepository(db),
		Vehicles:  NewVehicleRepository(db),
	}
}

// LoadSeed 读取 JSON 初始数据文件
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seed Seed
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("decode seed file: %w", err)
	}
	return &seed, nil
}

// ApplySeed 写入初始数据，已有区域时跳过区域部分；重复车牌忽略
// 返回写入的区域数
func ApplySeed(ctx context.Context, t SeedTarget, seed *Seed) (int, error) {
	existing, err := t.Zones.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list zones: %w", err)
	}

	created := 0
	if len(existing) == 0 {
		for i := range seed.Zones {
			sz := &seed.Zones[i]
			if !sz.Polygons.Valid() {
				return created, fmt.Errorf("zone %q: invalid polygon set", sz.Name)
			}
			if err := t.Zones.Create(ctx, &sz.Zone); err != nil {
				return created, fmt.Errorf("create zone %q: %w", sz.Name, err)
			}
			created++

			for j := range sz.Schedules {
				s := &sz.Schedules[j]
				s.ZoneID = sz.ID
				if err := s.Validate(); err != nil {
					return created, fmt.Errorf("zone %q: %w", sz.Name, err)
				}
				if err := t.Schedules.Create(ctx, s); err != nil {
					return created, fmt.Errorf("create schedule for zone %q: %w", sz.Name, err)
				}
			}
			for j := range sz.Tariffs {
				w := &sz.Tariffs[j]
				zoneID := sz.ID
				w.ZoneID = &zoneID
				if err := t.Tariffs.Create(ctx, w); err != nil {
					return created, fmt.Errorf("create tariff for zone %q: %w", sz.Name, err)
				}
			}
		}

		for i := range seed.Tariffs {
			w := &seed.Tariffs[i]
			w.ZoneID = nil
			if err := t.Tariffs.Create(ctx, w); err != nil {
				return created, fmt.Errorf("create tariff %q: %w", w.Name, err)
			}
		}
	}

	for i := range seed.Vehicles {
		v := &seed.Vehicles[i]
		if err := t.Vehicles.Create(ctx, v); err != nil && !errors.Is(err, ErrDuplicate) {
			return created, fmt.Errorf("create vehicle %q: %w", v.Plate, err)
		}
	}

	return created, nil
}
