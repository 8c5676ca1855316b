package tariff

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/langchou/parkmeter/internal/models"
)

var secondsPerHour = decimal.NewFromInt(3600)

// Table 按开始时间升序排列的费率窗口
// 窗口重叠时取开始时间最早的那个
type Table struct {
	windows []models.TariffWindow
	loc     *time.Location
}

// NewTable 构建费率表，忽略未启用的窗口
// loc 为计算时刻所用的时区，空时使用 UTC
func NewTable(windows []models.TariffWindow, loc *time.Location) *Table {
	if loc == nil {
		loc = time.UTC
	}

	enabled := make([]models.TariffWindow, 0, len(windows))
	for _, w := range windows {
		if w.Enabled {
			enabled = append(enabled, w)
		}
	}
	sort.SliceStable(enabled, func(i, j int) bool {
		return enabled[i].StartTime < enabled[j].StartTime
	})

	return &Table{windows: enabled, loc: loc}
}

// ForZone 选出区域适用的窗口：有专属窗口用专属的，否则用全局窗口
func ForZone(all []models.TariffWindow, zoneID int64) []models.TariffWindow {
	var own, global []models.TariffWindow
	for _, w := range all {
		switch {
		case w.ZoneID == nil:
			global = append(global, w)
		case *w.ZoneID == zoneID && w.Enabled:
			own = append(own, w)
		}
	}
	if len(own) > 0 {
		return own
	}
	return global
}

// Windows 已启用的窗口
func (t *Table) Windows() []models.TariffWindow {
	out := make([]models.TariffWindow, len(t.windows))
	copy(out, t.windows)
	return out
}

// WindowAt 命中的窗口
func (t *Table) WindowAt(tod models.TimeOfDay) (models.TariffWindow, bool) {
	for _, w := range t.windows {
		if w.Contains(tod) {
			return w, true
		}
	}
	return models.TariffWindow{}, false
}

// RateAt 该时刻的小时费率，没有命中返回 0
func (t *Table) RateAt(tod models.TimeOfDay) decimal.Decimal {
	if w, ok := t.WindowAt(tod); ok {
		return w.RatePerHour
	}
	return decimal.Zero
}

// IntegrateCost 从开始时间起按整小时步进累计费用
// 每一步用该步开始时刻的费率，最后一步截断到 end；结果四舍五入到两位小数
func (t *Table) IntegrateCost(start, end time.Time) decimal.Decimal {
	if !end.After(start) {
		return decimal.Zero
	}

	total := decimal.Zero
	for cur := start; cur.Before(end); {
		next := cur.Add(time.Hour)
		if next.After(end) {
			next = end
		}

		rate := t.RateAt(models.TimeOfDayOf(cur.In(t.loc)))
		if rate.IsPositive() {
			secs := decimal.NewFromFloat(next.Sub(cur).Seconds())
			total = total.Add(rate.Mul(secs).Div(secondsPerHour))
		}
		cur = next
	}

	return total.Round(2)
}
