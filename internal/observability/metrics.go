package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector 停车引擎的 Prometheus 指标
// 所有方法对 nil 接收者安全，未启用指标时直接传 nil
type Collector struct {
	gatherer prometheus.Gatherer

	SessionsStarted  *prometheus.CounterVec
	SessionsRejected *prometheus.CounterVec
	SessionsClosed   *prometheus.CounterVec
	AmountCharged    prometheus.Counter
	SweepDuration    prometheus.Histogram
	SweepExpired     prometheus.Counter
	AlarmsPlanned    prometheus.Counter
	AlarmsDispatched prometheus.Counter
	CatalogRefreshes *prometheus.CounterVec
}

// NewCollector 在 reg 上注册指标，reg 为空时使用默认注册表
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	started, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "parkmeter_sessions_started_total",
		Help: "Parking sessions started, labelled by whether a zone matched.",
	}, []string{"zone"}), "parkmeter_sessions_started_total")
	if err != nil {
		return nil, err
	}

	rejected, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "parkmeter_sessions_rejected_total",
		Help: "Session starts rejected, labelled by reason.",
	}, []string{"reason"}), "parkmeter_sessions_rejected_total")
	if err != nil {
		return nil, err
	}

	closed, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "parkmeter_sessions_closed_total",
		Help: "Parking sessions closed, labelled by final state.",
	}, []string{"state"}), "parkmeter_sessions_closed_total")
	if err != nil {
		return nil, err
	}

	amount, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "parkmeter_amount_charged_total",
		Help: "Sum of amounts due computed for closed sessions.",
	}), "parkmeter_amount_charged_total")
	if err != nil {
		return nil, err
	}

	sweepDuration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "parkmeter_sweep_duration_seconds",
		Help:    "Duration of expiration sweeps.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}), "parkmeter_sweep_duration_seconds")
	if err != nil {
		return nil, err
	}

	sweepExpired, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "parkmeter_sweep_expired_total",
		Help: "Sessions finalized by the expiration sweep.",
	}), "parkmeter_sweep_expired_total")
	if err != nil {
		return nil, err
	}

	planned, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "parkmeter_alarms_planned_total",
		Help: "Expiration reminders planned.",
	}), "parkmeter_alarms_planned_total")
	if err != nil {
		return nil, err
	}

	dispatched, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "parkmeter_alarms_dispatched_total",
		Help: "Expiration reminders delivered to clients.",
	}), "parkmeter_alarms_dispatched_total")
	if err != nil {
		return nil, err
	}

	refreshes, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "parkmeter_catalog_refreshes_total",
		Help: "Zone catalog reloads, labelled by source.",
	}, []string{"source"}), "parkmeter_catalog_refreshes_total")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:         gatherer,
		SessionsStarted:  started,
		SessionsRejected: rejected,
		SessionsClosed:   closed,
		AmountCharged:    amount,
		SweepDuration:    sweepDuration,
		SweepExpired:     sweepExpired,
		AlarmsPlanned:    planned,
		AlarmsDispatched: dispatched,
		CatalogRefreshes: refreshes,
	}, nil
}

// Gatherer 关联的 Gatherer，用于 /metrics
func (c *Collector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler /metrics 处理器
func (c *Collector) Handler() http.Handler {
	gatherer := c.Gatherer()
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SessionStarted 记录一次开始
func (c *Collector) SessionStarted(zoned bool) {
	if c == nil || c.SessionsStarted == nil {
		return
	}
	label := "none"
	if zoned {
		label = "zoned"
	}
	c.SessionsStarted.WithLabelValues(label).Inc()
}

// SessionRejected 记录一次被拒绝的开始
func (c *Collector) SessionRejected(reason string) {
	if c == nil || c.SessionsRejected == nil {
		return
	}
	c.SessionsRejected.WithLabelValues(reason).Inc()
}

// SessionClosed 记录一次结束及金额
func (c *Collector) SessionClosed(state string, amount float64) {
	if c == nil || c.SessionsClosed == nil {
		return
	}
	c.SessionsClosed.WithLabelValues(state).Inc()
	if amount > 0 && c.AmountCharged != nil {
		c.AmountCharged.Add(amount)
	}
}

// ObserveSweep 记录一次扫描
func (c *Collector) ObserveSweep(d time.Duration, expired int) {
	if c == nil {
		return
	}
	if c.SweepDuration != nil {
		c.SweepDuration.Observe(d.Seconds())
	}
	if c.SweepExpired != nil && expired > 0 {
		c.SweepExpired.Add(float64(expired))
	}
}

// AlarmPlanned 记录一次提醒创建
func (c *Collector) AlarmPlanned() {
	if c == nil || c.AlarmsPlanned == nil {
		return
	}
	c.AlarmsPlanned.Inc()
}

// AlarmDispatched 记录一次提醒推送
func (c *Collector) AlarmDispatched() {
	if c == nil || c.AlarmsDispatched == nil {
		return
	}
	c.AlarmsDispatched.Inc()
}

// CatalogRefreshed 记录一次目录加载
func (c *Collector) CatalogRefreshed(source string) {
	if c == nil || c.CatalogRefreshes == nil {
		return
	}
	c.CatalogRefreshes.WithLabelValues(source).Inc()
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
