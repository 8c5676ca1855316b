package state

import (
	"context"
	"fmt"
	"sync"

	"github.com/looplab/fsm"

	"github.com/langchou/parkmeter/internal/models"
)

// 事件常量
const (
	EventFinish = "finish"
	EventExpire = "expire"
	EventCancel = "cancel"
)

// ChangeFunc 状态变化回调
type ChangeFunc func(sessionID int64, from, to models.SessionState)

// Machine 停车会话状态机
// active 只能转到 finished / expired / cancelled，终止状态没有出边
type Machine struct {
	mu            sync.RWMutex
	sessionID     int64
	fsm           *fsm.FSM
	onStateChange ChangeFunc
}

// NewMachine 以会话当前状态创建状态机
func NewMachine(sessionID int64, initial models.SessionState, onStateChange ChangeFunc) *Machine {
	if initial == "" {
		initial = models.SessionActive
	}

	m := &Machine{
		sessionID:     sessionID,
		onStateChange: onStateChange,
	}

	active := []string{string(models.SessionActive)}
	m.fsm = fsm.NewFSM(
		string(initial),
		fsm.Events{
			{Name: EventFinish, Src: active, Dst: string(models.SessionFinished)},
			{Name: EventExpire, Src: active, Dst: string(models.SessionExpired)},
			{Name: EventCancel, Src: active, Dst: string(models.SessionCancelled)},
		},
		fsm.Callbacks{
			"after_event": func(ctx context.Context, e *fsm.Event) {
				if m.onStateChange != nil && e.Src != e.Dst {
					m.onStateChange(m.sessionID, models.SessionState(e.Src), models.SessionState(e.Dst))
				}
			},
		},
	)

	return m
}

// ForSession 以会话当前状态创建状态机
func ForSession(s *models.ParkingSession, onStateChange ChangeFunc) *Machine {
	return NewMachine(s.ID, s.State, onStateChange)
}

// CurrentState 获取当前状态
func (m *Machine) CurrentState() models.SessionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return models.SessionState(m.fsm.Current())
}

// Trigger 触发事件，返回新状态
func (m *Machine) Trigger(ctx context.Context, event string) (models.SessionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fsm.Event(ctx, event); err != nil {
		return models.SessionState(m.fsm.Current()), fmt.Errorf("trigger event %s: %w", event, err)
	}
	return models.SessionState(m.fsm.Current()), nil
}

// CanTransition 检查是否可以转换
func (m *Machine) CanTransition(event string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fsm.Can(event)
}
