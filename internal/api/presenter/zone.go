package presenter

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/langchou/parkmeter/internal/geo"
	"github.com/langchou/parkmeter/internal/models"
	"github.com/langchou/parkmeter/internal/schedule"
	"github.com/langchou/parkmeter/internal/tariff"
)

// DayView 某一天的营业时段，Closed 为 true 时 Open/Close 为空
type DayView struct {
	Weekday string `json:"weekday"`
	Open    string `json:"open,omitempty"`
	Close   string `json:"close,omitempty"`
	Closed  bool   `json:"closed"`
}

// TariffView 费率时段
type TariffView struct {
	Name        string          `json:"name,omitempty"`
	Start       string          `json:"start"`
	End         string          `json:"end"`
	RatePerHour decimal.Decimal `json:"rate_per_hour"`
}

// TransitionView 当天下一次开放或关闭
type TransitionView struct {
	Kind string `json:"kind"`
	At   string `json:"at"`
}

// ZoneView 区域展示模型
type ZoneView struct {
	ID             int64              `json:"id"`
	Name           string             `json:"name"`
	Description    string             `json:"description,omitempty"`
	Color          string             `json:"color,omitempty"`
	Kind           models.ZoneKind    `json:"kind"`
	Polygons       models.PolygonSet  `json:"polygons"`
	Centroid       *models.Coordinate `json:"centroid,omitempty"`
	Schedule       []DayView          `json:"schedule"`
	Tariffs        []TariffView       `json:"tariffs"`
	CurrentTariff  *TariffView        `json:"current_tariff,omitempty"`
	OpenNow        bool               `json:"open_now"`
	NextTransition *TransitionView    `json:"next_transition,omitempty"`
}

// Kind 禁停优先；有启用排班为收费区域，否则免费
func Kind(z *models.Zone, idx *schedule.Index) models.ZoneKind {
	switch {
	case z.Prohibited:
		return models.ZoneProhibited
	case idx != nil && idx.HasSchedule(z.ID):
		return models.ZonePaid
	default:
		return models.ZoneFree
	}
}

// Zone 把区域、排班和费率组合成展示模型，now 决定当前费率和营业状态
func Zone(z *models.Zone, idx *schedule.Index, table *tariff.Table, now time.Time) ZoneView {
	v := ZoneView{
		ID:          z.ID,
		Name:        z.Name,
		Description: z.Description,
		Color:       z.Color,
		Kind:        Kind(z, idx),
		Polygons:    z.Polygons,
		Schedule:    make([]DayView, 0, 7),
		Tariffs:     []TariffView{},
	}
	if c, ok := geo.Centroid(z.Polygons); ok {
		v.Centroid = &c
	}

	for wd := models.Monday; wd <= models.Sunday; wd++ {
		day := DayView{Weekday: wd.String(), Closed: true}
		if idx != nil {
			if e, ok := idx.EnabledEntry(z.ID, wd); ok {
				day = DayView{
					Weekday: wd.String(),
					Open:    e.OpenTime.ShortString(),
					Close:   e.CloseTime.ShortString(),
				}
			}
		}
		v.Schedule = append(v.Schedule, day)
	}

	// 只有收费区域展示费率
	if v.Kind != models.ZonePaid || table == nil {
		return v
	}

	for _, w := range table.Windows() {
		v.Tariffs = append(v.Tariffs, tariffView(w))
	}

	weekday, tod := models.WeekdayOf(now), models.TimeOfDayOf(now)
	if w, ok := table.WindowAt(tod); ok {
		tv := tariffView(w)
		v.CurrentTariff = &tv
	}
	v.OpenNow = idx.IsOpen(z, weekday, tod)
	if next := idx.NextTransition(z, weekday, tod); next.Kind != schedule.TransitionNone {
		v.NextTransition = &TransitionView{Kind: string(next.Kind), At: next.At.ShortString()}
	}
	return v
}

func tariffView(w models.TariffWindow) TariffView {
	return TariffView{
		Name:        w.Name,
		Start:       w.StartTime.ShortString(),
		End:         w.EndTime.ShortString(),
		RatePerHour: w.RatePerHour,
	}
}
