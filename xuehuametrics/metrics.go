// Package xuehuametrics: Prometheus instrumentation wrapped around an id source
// The generator itself stays free of telemetry; callers that want metrics wrap it here
//
// xuehuametrics: 包装在 ID 源外层的 Prometheus 指标
// 生成器本身不带遥测，需要指标的调用方在此包装
package xuehuametrics

import (
	"strconv"
	"time"

	"github.com/go-xlan/xuehua-go-id/xuehuaid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/yyle88/must"
)

// Failure kinds used as the "kind" label
const (
	KindClockBackwards    = "clock_backwards"
	KindSequenceOverflow  = "sequence_overflow"
	KindTimestampOverflow = "timestamp_overflow"
	KindOther             = "other"
)

// IDSource is anything that hands out ids, *xuehuaid.Generator in practice
type IDSource interface {
	Next() (int64, error)
}

// Instrumented counts ids and failures and times each call
// Instrumented 统计生成数量和失败次数，并记录每次调用耗时
type Instrumented struct {
	source    IDSource
	generated prometheus.Counter
	failures  *prometheus.CounterVec
	latency   prometheus.Histogram
}

// NewInstrumented registers the metrics on reg under namespace; workerID becomes a constant label
// NewInstrumented 在 reg 上以 namespace 注册指标，workerID 作为常量标签
func NewInstrumented(source IDSource, reg prometheus.Registerer, namespace string, workerID int64) *Instrumented {
	must.Nice(source)
	must.Nice(reg)

	labels := prometheus.Labels{"worker_id": strconv.FormatInt(workerID, 10)}
	factory := promauto.With(reg)
	return &Instrumented{
		source: source,
		generated: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "idgen",
			Name:        "ids_generated_total",
			Help:        "Total number of ids handed out",
			ConstLabels: labels,
		}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "idgen",
			Name:        "failures_total",
			Help:        "Total number of failed id requests by kind",
			ConstLabels: labels,
		}, []string{"kind"}),
		latency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "idgen",
			Name:        "next_duration_seconds",
			Help:        "Time spent in Next, including waits for the clock",
			ConstLabels: labels,
			Buckets:     []float64{.00001, .0001, .001, .005, .01, .1, 1},
		}),
	}
}

// Next forwards to the wrapped source
func (m *Instrumented) Next() (int64, error) {
	start := time.Now()
	id, err := m.source.Next()
	m.latency.Observe(time.Since(start).Seconds())
	if err != nil {
		m.failures.WithLabelValues(FailureKind(err)).Inc()
		return 0, err
	}
	m.generated.Inc()
	return id, nil
}

// FailureKind classifies an error returned by Next
// FailureKind 对 Next 返回的错误分类
func FailureKind(err error) string {
	switch {
	case errors.Is(err, xuehuaid.ErrClockMovedBackwards):
		return KindClockBackwards
	case errors.Is(err, xuehuaid.ErrSequenceOverflow):
		return KindSequenceOverflow
	case errors.Is(err, xuehuaid.ErrTimestampOverflow):
		return KindTimestampOverflow
	default:
		return KindOther
	}
}
