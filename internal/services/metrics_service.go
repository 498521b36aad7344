package services

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	chatStreamTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_stream_total",
		Help: "Completed chat stream attempts by provider and outcome.",
	}, []string{"provider", "status"})

	chatStreamRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_stream_retries_total",
		Help: "Upstream connect retries before first byte.",
	})

	ragRetrievalTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rag_retrieval_total",
		Help: "Knowledge retrieval attempts by result.",
	}, []string{"result"})

	ragRetrievedDocs = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rag_retrieved_docs",
		Help:    "Number of documents returned per retrieval.",
		Buckets: []float64{0, 1, 2, 3, 5, 10},
	})
)

// MetricsService 指标服务
type MetricsService struct{}

// NewMetricsService 创建指标服务
func NewMetricsService() *MetricsService {
	return &MetricsService{}
}

// Handler 返回Prometheus指标的HTTP处理器
func (ms *MetricsService) Handler() http.Handler {
	return promhttp.Handler()
}

// ServeHTTP 实现http.Handler接口
func (ms *MetricsService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ms.Handler().ServeHTTP(w, r)
}
