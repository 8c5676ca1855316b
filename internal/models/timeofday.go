package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TimeOfDay 一天中的时刻，按午夜起的秒数表示
type TimeOfDay int

const (
	// EndOfDay 24:00:00，仅用作窗口的结束边界
	EndOfDay TimeOfDay = 24 * 60 * 60
)

// NewTimeOfDay 由时分秒构造
func NewTimeOfDay(hour, minute, second int) TimeOfDay {
	return TimeOfDay(hour*3600 + minute*60 + second)
}

// ParseTimeOfDay 解析 "HH:MM" 或 "HH:MM:SS"
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	var h, m, sec int
	var err error
	switch strings.Count(s, ":") {
	case 1:
		_, err = fmt.Sscanf(s, "%d:%d", &h, &m)
	case 2:
		_, err = fmt.Sscanf(s, "%d:%d:%d", &h, &m, &sec)
	default:
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	if err != nil {
		return 0, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	if h < 0 || m < 0 || m > 59 || sec < 0 || sec > 59 || h > 24 || (h == 24 && (m != 0 || sec != 0)) {
		return 0, fmt.Errorf("time of day %q out of range", s)
	}
	return NewTimeOfDay(h, m, sec), nil
}

// MustTimeOfDay 解析失败时 panic，仅用于常量和测试
func MustTimeOfDay(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

// TimeOfDayOf 取时间在其所在时区的时刻（截断到秒）
func TimeOfDayOf(t time.Time) TimeOfDay {
	return NewTimeOfDay(t.Hour(), t.Minute(), t.Second())
}

// Hour 小时
func (t TimeOfDay) Hour() int { return int(t) / 3600 }

// Minute 分钟
func (t TimeOfDay) Minute() int { return int(t) % 3600 / 60 }

// Second 秒
func (t TimeOfDay) Second() int { return int(t) % 60 }

// TruncateMinute 去掉秒
func (t TimeOfDay) TruncateMinute() TimeOfDay {
	return t - TimeOfDay(t.Second())
}

// Duration 距午夜的时长
func (t TimeOfDay) Duration() time.Duration {
	return time.Duration(t) * time.Second
}

// On 返回 day 当天（day 所在时区）该时刻对应的时间点
func (t TimeOfDay) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), 0, day.Location())
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour(), t.Minute(), t.Second())
}

// ShortString HH:MM 格式（用于展示）
func (t TimeOfDay) ShortString() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// MarshalJSON 输出 "HH:MM:SS"
func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON 接受 "HH:MM" 或 "HH:MM:SS"
func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Weekday 星期，周一为 1，周日为 7
type Weekday int

const (
	Monday Weekday = iota + 1
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var weekdayNames = [...]string{"", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// WeekdayOf 取时间在其所在时区的星期
func WeekdayOf(t time.Time) Weekday {
	wd := t.Weekday()
	if wd == time.Sunday {
		return Sunday
	}
	return Weekday(wd)
}

// Valid 1..7
func (w Weekday) Valid() bool {
	return w >= Monday && w <= Sunday
}

// Prev 前一天，周一的前一天是周日
func (w Weekday) Prev() Weekday {
	if w <= Monday {
		return Sunday
	}
	return w - 1
}

func (w Weekday) String() string {
	if !w.Valid() {
		return fmt.Sprintf("weekday(%d)", int(w))
	}
	return weekdayNames[w]
}

// ParseWeekday 支持名称或数字
func ParseWeekday(s string) (Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i := 1; i < len(weekdayNames); i++ {
		if weekdayNames[i] == s {
			return Weekday(i), nil
		}
	}
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err == nil && Weekday(n).Valid() {
		return Weekday(n), nil
	}
	return 0, fmt.Errorf("invalid weekday %q", s)
}
