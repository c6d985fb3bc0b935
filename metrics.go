package main

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xpzouying/starpath/pkg/apperr"
)

const metricsNamespace = "starpath"

// Metrics 流水线指标
type Metrics struct {
	registry *prometheus.Registry

	runsTotal       *prometheus.CounterVec
	framesExtracted prometheus.Counter
	runDuration     prometheus.Histogram
	runsInFlight    prometheus.Gauge
}

// NewMetrics 创建指标收集器，使用独立的 registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "runs_total",
				Help:      "Total number of pipeline runs by outcome",
			},
			[]string{"outcome"},
		),
		framesExtracted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "frames_extracted_total",
			Help:      "Total number of frames successfully extracted",
		}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "run_duration_seconds",
			Help:      "Pipeline run duration in seconds",
			Buckets:   []float64{5, 15, 30, 60, 120, 180, 240, 300, 360},
		}),
		runsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "runs_in_flight",
			Help:      "Number of pipeline runs currently executing",
		}),
	}
}

// RunStarted 记录一次运行开始，返回的函数在运行结束时调用
func (m *Metrics) RunStarted() func(frames int, err error) {
	start := time.Now()
	m.runsInFlight.Inc()
	return func(frames int, err error) {
		m.runsInFlight.Dec()
		m.runDuration.Observe(time.Since(start).Seconds())
		m.runsTotal.WithLabelValues(outcomeLabel(err)).Inc()
		if frames > 0 {
			m.framesExtracted.Add(float64(frames))
		}
	}
}

// Handler /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func outcomeLabel(err error) string {
	if err == nil {
		return "success"
	}
	return apperr.KindOf(err).String()
}
