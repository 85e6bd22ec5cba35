package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletledger/internal/ledger"
)

// Outcome labels for ObserveOperation.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
	OutcomeFatal    = "rollback_failed"
)

// Recorder collects ledger operation metrics.
type Recorder interface {
	ObserveOperation(op, outcome string, duration time.Duration)
	AddVolume(op, currencyCode string, amount decimal.Decimal)
	RecordCircuitState(name string, state string)
}

// Outcome classifies an operation error for ObserveOperation.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ledger.ErrRollbackFailed):
		return OutcomeFatal
	case ledger.IsDomainError(err):
		return OutcomeRejected
	default:
		return OutcomeError
	}
}

// Noop drops every observation. It is the default when metrics are disabled.
type Noop struct{}

func (Noop) ObserveOperation(string, string, time.Duration) {}
func (Noop) AddVolume(string, string, decimal.Decimal)      {}
func (Noop) RecordCircuitState(string, string)              {}

// Prometheus exports ledger metrics through client_golang collectors.
type Prometheus struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	volume     *prometheus.CounterVec
	circuit    *prometheus.GaugeVec
}

// NewPrometheus creates the collectors and registers them on reg.
func NewPrometheus(namespace string, reg prometheus.Registerer) (*Prometheus, error) {
	p := &Prometheus{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_operations_total",
				Help:      "Ledger operations by name and outcome",
			},
			[]string{"operation", "outcome"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ledger_operation_duration_seconds",
				Help:      "Ledger operation latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		volume: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_volume_total",
				Help:      "Committed amount moved, in units of the wallet currency",
			},
			[]string{"operation", "currency"},
		),
		circuit: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_open",
				Help:      "1 while the named circuit breaker is open or half-open",
			},
			[]string{"name"},
		),
	}

	for _, c := range []prometheus.Collector{p.operations, p.latency, p.volume, p.circuit} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Prometheus) ObserveOperation(op, outcome string, duration time.Duration) {
	p.operations.WithLabelValues(op, outcome).Inc()
	p.latency.WithLabelValues(op).Observe(duration.Seconds())
}

func (p *Prometheus) AddVolume(op, currencyCode string, amount decimal.Decimal) {
	p.volume.WithLabelValues(op, currencyCode).Add(amount.InexactFloat64())
}

func (p *Prometheus) RecordCircuitState(name string, state string) {
	v := 1.0
	if state == "closed" {
		v = 0
	}
	p.circuit.WithLabelValues(name).Set(v)
}
