package repository

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/langchou/parkmeter/internal/models"
)

const (
	activeSessionIndex = "idx_parking_sessions_one_active"
	uniqueViolation    = "23505"
)

var (
	// ErrNotFound 记录不存在，或条件更新没有命中
	ErrNotFound = errors.New("record not found")
	// ErrActiveSessionExists 车辆已有进行中的会话
	ErrActiveSessionExists = errors.New("vehicle already has an active session")
	// ErrDuplicate 违反唯一约束
	ErrDuplicate = errors.New("duplicate record")
)

// mapError 把驱动错误转换为仓库错误
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		if pgErr.ConstraintName == activeSessionIndex {
			return ErrActiveSessionExists
		}
		return ErrDuplicate
	}
	return err
}

func toPgTime(t models.TimeOfDay) pgtype.Time {
	return pgtype.Time{Microseconds: int64(t) * 1_000_000, Valid: true}
}

func fromPgTime(t pgtype.Time) models.TimeOfDay {
	return models.TimeOfDay(t.Microseconds / 1_000_000)
}
