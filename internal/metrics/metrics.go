package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sentibot"

// Registry holds the bot's Prometheus collectors on a private registry. A nil
// *Registry is valid and records nothing.
type Registry struct {
	reg *prometheus.Registry

	StepDuration   *prometheus.HistogramVec
	Signals        *prometheus.CounterVec
	Trades         *prometheus.CounterVec
	RiskRejections *prometheus.CounterVec
	ForcedExits    *prometheus.CounterVec
	OrderErrors    *prometheus.CounterVec

	PortfolioValue prometheus.Gauge
	Cash           prometheus.Gauge
	DailyLoss      prometheus.Gauge
	OpenPositions  prometheus.Gauge
}

func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		StepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Duration of one symbol evaluation cycle in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"result"},
		),

		Signals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "signals_total",
				Help:      "Fused signals by symbol and action",
			},
			[]string{"symbol", "action"},
		),

		Trades: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "trades_total",
				Help:      "Trades accepted by the risk manager",
			},
			[]string{"symbol", "side"},
		),

		RiskRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "risk_rejections_total",
				Help:      "Signals rejected by the risk manager by reason",
			},
			[]string{"reason"},
		),

		ForcedExits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "forced_exits_total",
				Help:      "Stop-loss and take-profit exits",
			},
			[]string{"exit"},
		),

		OrderErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "order_errors_total",
				Help:      "Orders the executor failed to place",
			},
			[]string{"symbol"},
		),

		PortfolioValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "portfolio_value",
			Help:      "Cash plus marked position value",
		}),
		Cash: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "portfolio_cash",
			Help:      "Uninvested cash",
		}),
		DailyLoss: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "daily_loss",
			Help:      "Realized loss booked in the current trading day",
		}),
		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_positions",
			Help:      "Number of open positions",
		}),
	}

	r.reg.MustRegister(
		r.StepDuration,
		r.Signals,
		r.Trades,
		r.RiskRejections,
		r.ForcedExits,
		r.OrderErrors,
		r.PortfolioValue,
		r.Cash,
		r.DailyLoss,
		r.OpenPositions,
	)
	return r
}

// Gatherer exposes the private registry for scraping and tests.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

func (r *Registry) ObserveStep(result string, d time.Duration) {
	if r == nil {
		return
	}
	r.StepDuration.WithLabelValues(result).Observe(d.Seconds())
}

func (r *Registry) Signal(symbol, action string) {
	if r == nil {
		return
	}
	r.Signals.WithLabelValues(symbol, action).Inc()
}

func (r *Registry) Trade(symbol, side string) {
	if r == nil {
		return
	}
	r.Trades.WithLabelValues(symbol, side).Inc()
}

func (r *Registry) Rejected(reason string) {
	if r == nil {
		return
	}
	r.RiskRejections.WithLabelValues(reason).Inc()
}

func (r *Registry) ForcedExit(exit string) {
	if r == nil {
		return
	}
	r.ForcedExits.WithLabelValues(exit).Inc()
}

func (r *Registry) OrderError(symbol string) {
	if r == nil {
		return
	}
	r.OrderErrors.WithLabelValues(symbol).Inc()
}

func (r *Registry) SetPortfolio(total, cash, dailyLoss float64, open int) {
	if r == nil {
		return
	}
	r.PortfolioValue.Set(total)
	r.Cash.Set(cash)
	r.DailyLoss.Set(dailyLoss)
	r.OpenPositions.Set(float64(open))
}
