// Package metrics 提供帳務核心的 Prometheus 指標。
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 交易相關指標集合
// 所有方法對 nil receiver 都是安全的 no-op，方便測試時不接指標
type Metrics struct {
	transactionsTotal *prometheus.CounterVec
	transactionSec    *prometheus.HistogramVec
	lockTimeouts      prometheus.Counter
}

// New 建立並註冊指標
//
// 參數:
//
//	namespace: 指標命名空間 (e.g. "ledger")
//	reg: Prometheus registerer，通常是 prometheus.NewRegistry()
func New(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transactionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transactions_total",
				Help:      "Total number of executed transactions by type and status",
			},
			[]string{"type", "status"},
		),
		transactionSec: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "transaction_duration_seconds",
				Help:      "Latency of transaction execution",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"type"},
		),
		lockTimeouts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lock_wait_timeouts_total",
				Help:      "Number of operations rejected because the account lock wait timed out",
			},
		),
	}
	reg.MustRegister(m.transactionsTotal, m.transactionSec, m.lockTimeouts)
	return m
}

// ObserveTransaction 記錄一筆交易的類型、結果與耗時
func (m *Metrics) ObserveTransaction(txType, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.transactionsTotal.WithLabelValues(txType, status).Inc()
	m.transactionSec.WithLabelValues(txType).Observe(elapsed.Seconds())
}

// LockTimeout 記錄一次鎖等待逾時
func (m *Metrics) LockTimeout() {
	if m == nil {
		return
	}
	m.lockTimeouts.Inc()
}
