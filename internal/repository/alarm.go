package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/langchou/parkmeter/internal/models"
)

const alarmColumns = `id, session_id, fire_at, message, kind, active, sent, created_at`

// AlarmRepository 到期提醒仓库
type AlarmRepository struct {
	db *DB
}

// NewAlarmRepository 创建提醒仓库
func NewAlarmRepository(db *DB) *AlarmRepository {
	return &AlarmRepository{db: db}
}

// Create 创建提醒
func (r *AlarmRepository) Create(ctx context.Context, a *models.Alarm) error {
	query := `
		INSERT INTO alarms (session_id, fire_at, message, kind, active, sent)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	err := r.db.Pool.QueryRow(ctx, query, a.SessionID, a.FireAt, a.Message, a.Kind, a.Active, a.Sent).
		Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert alarm: %w", mapError(err))
	}
	return nil
}

// GetActiveBySession 会话当前有效的提醒
func (r *AlarmRepository) GetActiveBySession(ctx context.Context, sessionID int64) (*models.Alarm, error) {
	query := `SELECT ` + alarmColumns + ` FROM alarms WHERE session_id = $1 AND active`
	a, err := scanAlarm(r.db.Pool.QueryRow(ctx, query, sessionID))
	if err != nil {
		return nil, fmt.Errorf("get active alarm: %w", mapError(err))
	}
	return a, nil
}

// DeactivateBySession 停用会话的提醒，返回受影响的条数
func (r *AlarmRepository) DeactivateBySession(ctx context.Context, sessionID int64) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `UPDATE alarms SET active = FALSE WHERE session_id = $1 AND active`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("deactivate alarms: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListDue 已到触发时间、尚未发送的提醒
func (r *AlarmRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Alarm, error) {
	query := `
		SELECT ` + alarmColumns + ` FROM alarms
		WHERE active AND NOT sent AND fire_at <= $1
		ORDER BY fire_at, id LIMIT $2
	`
	rows, err := r.db.Pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due alarms: %w", err)
	}
	defer rows.Close()

	var alarms []*models.Alarm
	for rows.Next() {
		a, err := scanAlarm(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alarm: %w", err)
		}
		alarms = append(alarms, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list due alarms: %w", err)
	}
	return alarms, nil
}

// MarkSent 标记为已发送并停用
func (r *AlarmRepository) MarkSent(ctx context.Context, id int64) error {
	tag, err := r.db.Pool.Exec(ctx, `UPDATE alarms SET sent = TRUE, active = FALSE WHERE id = $1 AND NOT sent`, id)
	if err != nil {
		return fmt.Errorf("mark alarm sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark alarm sent: %w", ErrNotFound)
	}
	return nil
}

func scanAlarm(row pgx.Row) (*models.Alarm, error) {
	a := &models.Alarm{}
	err := row.Scan(&a.ID, &a.SessionID, &a.FireAt, &a.Message, &a.Kind, &a.Active, &a.Sent, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}
