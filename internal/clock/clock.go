package clock

import (
	"sync"
	"time"
)

// Clock 时间源。会话和扫描逻辑都通过它取当前时间，测试时可替换
type Clock interface {
	Now() time.Time
}

// Real 系统时钟，结果转换到指定时区
type Real struct {
	loc *time.Location
}

// NewReal 创建系统时钟，loc 为空时使用本地时区
func NewReal(loc *time.Location) Real {
	if loc == nil {
		loc = time.Local
	}
	return Real{loc: loc}
}

// Now 当前时间
func (c Real) Now() time.Time {
	return time.Now().In(c.loc)
}

// Manual 手动推进的时钟
type Manual struct {
	mu  sync.RWMutex
	now time.Time
}

// NewManual 以给定时间创建
func NewManual(now time.Time) *Manual {
	return &Manual{now: now}
}

// Now 当前时间
func (c *Manual) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// Set 设置时间
func (c *Manual) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance 向前推进
func (c *Manual) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}
