package schedule

import (
	"errors"
	"fmt"
	"sort"

	"github.com/langchou/parkmeter/internal/models"
)

// ErrDuplicateEntry 同一区域同一星期出现多条排班
var ErrDuplicateEntry = errors.New("duplicate schedule entry for zone and weekday")

// TransitionKind 状态变化类型
type TransitionKind string

const (
	TransitionNone   TransitionKind = "none"
	TransitionOpens  TransitionKind = "opens"
	TransitionCloses TransitionKind = "closes"
)

// Transition 下一次开放/关闭
type Transition struct {
	Kind TransitionKind   `json:"kind"`
	At   models.TimeOfDay `json:"at"`
}

type key struct {
	zoneID  int64
	weekday models.Weekday
}

// Index 按 (区域, 星期) 索引的排班表，构建后只读
type Index struct {
	entries map[key]models.ZoneSchedule
	byDay   map[models.Weekday][]models.ZoneSchedule
}

// Build 构建索引，跳过不合法或重复的条目并返回跳过原因
// 同一 (区域, 星期) 出现多条时保留第一条
func Build(entries []models.ZoneSchedule) (*Index, []error) {
	idx := &Index{
		entries: make(map[key]models.ZoneSchedule, len(entries)),
		byDay:   make(map[models.Weekday][]models.ZoneSchedule),
	}

	var rejected []error
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			rejected = append(rejected, err)
			continue
		}
		k := key{zoneID: e.ZoneID, weekday: e.Weekday}
		if _, ok := idx.entries[k]; ok {
			rejected = append(rejected, fmt.Errorf("zone %d %s: %w", e.ZoneID, e.Weekday, ErrDuplicateEntry))
			continue
		}
		idx.entries[k] = e
		idx.byDay[e.Weekday] = append(idx.byDay[e.Weekday], e)
	}

	for wd := range idx.byDay {
		day := idx.byDay[wd]
		sort.Slice(day, func(i, j int) bool { return day[i].ZoneID < day[j].ZoneID })
	}

	return idx, rejected
}

// NewIndex 构建索引，有任何不合法或重复的条目时返回错误
func NewIndex(entries []models.ZoneSchedule) (*Index, error) {
	idx, rejected := Build(entries)
	if len(rejected) > 0 {
		return nil, rejected[0]
	}
	return idx, nil
}

// Entry 取某区域某天的排班（包括未启用的）
func (idx *Index) Entry(zoneID int64, weekday models.Weekday) (models.ZoneSchedule, bool) {
	e, ok := idx.entries[key{zoneID: zoneID, weekday: weekday}]
	return e, ok
}

// EnabledEntry 取某区域某天已启用的排班
func (idx *Index) EnabledEntry(zoneID int64, weekday models.Weekday) (models.ZoneSchedule, bool) {
	e, ok := idx.Entry(zoneID, weekday)
	if !ok || !e.Enabled {
		return models.ZoneSchedule{}, false
	}
	return e, true
}

// ForZone 某区域一周的排班，按星期排序
func (idx *Index) ForZone(zoneID int64) []models.ZoneSchedule {
	var out []models.ZoneSchedule
	for wd := models.Monday; wd <= models.Sunday; wd++ {
		if e, ok := idx.Entry(zoneID, wd); ok {
			out = append(out, e)
		}
	}
	return out
}

// HasSchedule 区域是否有任何启用的排班（用于区分收费/免费区域）
func (idx *Index) HasSchedule(zoneID int64) bool {
	for wd := models.Monday; wd <= models.Sunday; wd++ {
		if _, ok := idx.EnabledEntry(zoneID, wd); ok {
			return true
		}
	}
	return false
}

// IsOpen 区域在该时刻是否开放；禁停区域永远不开放
func (idx *Index) IsOpen(zone *models.Zone, weekday models.Weekday, t models.TimeOfDay) bool {
	if zone == nil || zone.Prohibited {
		return false
	}
	e, ok := idx.EnabledEntry(zone.ID, weekday)
	if !ok {
		return false
	}
	return e.Contains(t)
}

// NextTransition 同一天内的下一次状态变化
func (idx *Index) NextTransition(zone *models.Zone, weekday models.Weekday, t models.TimeOfDay) Transition {
	if zone == nil {
		return Transition{Kind: TransitionNone}
	}
	e, ok := idx.EnabledEntry(zone.ID, weekday)
	if !ok {
		return Transition{Kind: TransitionNone}
	}

	switch {
	case t < e.OpenTime:
		return Transition{Kind: TransitionOpens, At: e.OpenTime}
	case t < e.CloseTime:
		return Transition{Kind: TransitionCloses, At: e.CloseTime}
	default:
		return Transition{Kind: TransitionNone}
	}
}

// ClosingAt 在该时刻关闭的启用排班，按区域 ID 升序
// 关闭时间精确到秒时按秒匹配；整分钟的关闭时间在该分钟内都会匹配
// 前一天 24:00 关闭的排班在当天 00:00 匹配
func (idx *Index) ClosingAt(weekday models.Weekday, t models.TimeOfDay) []models.ZoneSchedule {
	var out []models.ZoneSchedule
	minute := t.TruncateMinute()
	for _, e := range idx.byDay[weekday] {
		if !e.Enabled {
			continue
		}
		if e.CloseTime == t || (e.CloseTime.Second() == 0 && e.CloseTime == minute) {
			out = append(out, e)
		}
	}

	if minute == 0 {
		for _, e := range idx.byDay[weekday.Prev()] {
			if e.Enabled && e.CloseTime == models.EndOfDay {
				out = append(out, e)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ZoneID < out[j].ZoneID })
	}
	return out
}

// Len 条目数
func (idx *Index) Len() int {
	return len(idx.entries)
}
