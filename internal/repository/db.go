package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB 数据库连接池封装
type DB struct {
	Pool *pgxpool.Pool
}

// New 创建数据库连接
func New(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	// 连接池配置
	config.MaxConns = 10
	config.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close 关闭连接池
func (db *DB) Close() {
	db.Pool.Close()
}

// Migrate 执行数据库迁移
func (db *DB) Migrate(ctx context.Context) error {
	migrations := []string{
		migrationCreateZones,
		migrationCreateZoneSchedules,
		migrationCreateTariffWindows,
		migrationCreateVehicles,
		migrationCreateParkingSessions,
		migrationCreateAlarms,
	}

	for _, m := range migrations {
		if _, err := db.Pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}
	}

	return nil
}

// 数据库迁移 SQL
const migrationCreateZones = `
CREATE TABLE IF NOT EXISTS zones (
    id BIGSERIAL PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    polygons JSONB NOT NULL DEFAULT '[]',
    color VARCHAR(16) NOT NULL DEFAULT '',
    prohibited BOOLEAN NOT NULL DEFAULT FALSE,
    active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_zones_active ON zones(id) WHERE active;
`

const migrationCreateZoneSchedules = `
CREATE TABLE IF NOT EXISTS zone_schedules (
    id BIGSERIAL PRIMARY KEY,
    zone_id BIGINT NOT NULL REFERENCES zones(id) ON DELETE CASCADE,
    weekday SMALLINT NOT NULL CHECK (weekday BETWEEN 1 AND 7),
    open_time TIME NOT NULL,
    close_time TIME NOT NULL,
    enabled BOOLEAN NOT NULL DEFAULT TRUE,
    CHECK (open_time < close_time),
    UNIQUE (zone_id, weekday)
);
CREATE INDEX IF NOT EXISTS idx_zone_schedules_weekday ON zone_schedules(weekday, close_time) WHERE enabled;
`

const migrationCreateTariffWindows = `
CREATE TABLE IF NOT EXISTS tariff_windows (
    id BIGSERIAL PRIMARY KEY,
    zone_id BIGINT REFERENCES zones(id) ON DELETE CASCADE,
    name VARCHAR(255) NOT NULL DEFAULT '',
    start_time TIME NOT NULL,
    end_time TIME NOT NULL,
    rate_per_hour NUMERIC(12, 2) NOT NULL CHECK (rate_per_hour >= 0),
    description TEXT NOT NULL DEFAULT '',
    enabled BOOLEAN NOT NULL DEFAULT TRUE
);
CREATE INDEX IF NOT EXISTS idx_tariff_windows_zone_id ON tariff_windows(zone_id);
`

const migrationCreateVehicles = `
CREATE TABLE IF NOT EXISTS vehicles (
    id BIGSERIAL PRIMARY KEY,
    owner_id BIGINT NOT NULL,
    plate VARCHAR(20) NOT NULL UNIQUE,
    brand VARCHAR(100) NOT NULL DEFAULT '',
    model VARCHAR(100) NOT NULL DEFAULT '',
    color VARCHAR(50) NOT NULL DEFAULT '',
    last_latitude DOUBLE PRECISION,
    last_longitude DOUBLE PRECISION,
    parked_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_vehicles_owner_id ON vehicles(owner_id);
`

const migrationCreateParkingSessions = `
CREATE TABLE IF NOT EXISTS parking_sessions (
    id BIGSERIAL PRIMARY KEY,
    vehicle_id BIGINT NOT NULL REFERENCES vehicles(id) ON DELETE CASCADE,
    zone_id BIGINT REFERENCES zones(id) ON DELETE SET NULL,
    latitude DOUBLE PRECISION NOT NULL,
    longitude DOUBLE PRECISION NOT NULL,
    address JSONB,
    start_time TIMESTAMPTZ NOT NULL,
    end_time TIMESTAMPTZ,
    state VARCHAR(16) NOT NULL DEFAULT 'active',
    amount_due NUMERIC(12, 2),
    alarm_scheduled BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS ` + activeSessionIndex + ` ON parking_sessions(vehicle_id) WHERE state = 'active';
CREATE INDEX IF NOT EXISTS idx_parking_sessions_zone_active ON parking_sessions(zone_id) WHERE state = 'active';
CREATE INDEX IF NOT EXISTS idx_parking_sessions_vehicle_start ON parking_sessions(vehicle_id, start_time DESC);
`

const migrationCreateAlarms = `
CREATE TABLE IF NOT EXISTS alarms (
    id BIGSERIAL PRIMARY KEY,
    session_id BIGINT NOT NULL REFERENCES parking_sessions(id) ON DELETE CASCADE,
    fire_at TIMESTAMPTZ NOT NULL,
    message TEXT NOT NULL DEFAULT '',
    kind VARCHAR(16) NOT NULL DEFAULT 'expiration',
    active BOOLEAN NOT NULL DEFAULT TRUE,
    sent BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_alarms_one_active ON alarms(session_id) WHERE active;
CREATE INDEX IF NOT EXISTS idx_alarms_due ON alarms(fire_at) WHERE active AND NOT sent;
`
