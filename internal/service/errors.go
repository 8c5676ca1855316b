package service

import (
	"errors"
	"fmt"
)

// 引擎对外的错误类型，调用方用 errors.Is 判断
var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrForbiddenZone = errors.New("forbidden zone")
	ErrInvalidInput  = errors.New("invalid input")
	ErrInternal      = errors.New("internal error")

	// ErrZoneClosed 区域不在营业时段，属于 ErrForbiddenZone
	ErrZoneClosed = fmt.Errorf("%w: zone is closed", ErrForbiddenZone)
	// ErrNoSchedule 区域今天没有排班，不创建提醒
	ErrNoSchedule = errors.New("zone has no schedule today")
)

func internalError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrInternal, op, err)
}
