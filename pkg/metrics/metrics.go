// Package metrics 定义进程内的 Prometheus 指标。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry 是本服务专用的注册表，避免与默认注册表中的第三方指标冲突。
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	// DocumentsProcessed 按结果（success/degraded/fatal）统计文档处理次数。
	DocumentsProcessed = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pdfchat",
		Name:      "documents_processed_total",
		Help:      "Documents processed, by outcome.",
	}, []string{"outcome"})

	// FallbackActivations 统计降级到关键词模式的次数，stage 为 build 或 query。
	FallbackActivations = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pdfchat",
		Name:      "fallback_activations_total",
		Help:      "Keyword fallback activations, by stage.",
	}, []string{"stage"})

	// QuestionsAnswered 按回答路径（llm/fallback）与结果统计问答次数。
	QuestionsAnswered = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pdfchat",
		Name:      "questions_answered_total",
		Help:      "Questions answered, by synthesis path and outcome.",
	}, []string{"path", "outcome"})

	// AskDuration 是单轮问答的耗时分布。
	AskDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: "pdfchat",
		Name:      "ask_duration_seconds",
		Help:      "Latency of a full question/answer turn.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	// ActiveSessions 是内存会话存储中的会话数。
	ActiveSessions = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "pdfchat",
		Name:      "active_sessions",
		Help:      "Sessions currently held by the in-memory store.",
	})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler 返回暴露 Registry 的 HTTP handler。
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
