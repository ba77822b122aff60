package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// 全局 Registry，供 API/CLI/批处理注册与暴露
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		SessionDuration, SessionTotal, StepTotal,
		ToolDuration, LLMCallTotal, SearchCallTotal,
		RateLimitWaitSeconds, BatchBusy, ScoreAccuracy,
	)
}

// SessionDuration 单次求解会话耗时（秒）
var SessionDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "agent_session_duration_seconds",
		Help:    "求解会话耗时（秒）",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	},
	[]string{"decision_format"},
)

// SessionTotal 会话总数（按结束原因）
var SessionTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "agent_session_total",
		Help: "会话总数（按结束原因）",
	},
	[]string{"stop_reason"}, // verified | budget | timeout | cancelled
)

// StepTotal 已记录步数（按工具与结果）
var StepTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "agent_step_total",
		Help: "已记录步数",
	},
	[]string{"tool", "outcome"}, // ok | tool_error | unmatched | parse_error | remote_error
)

// ToolDuration 工具调用耗时（秒）
var ToolDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "agent_tool_duration_seconds",
		Help:    "工具调用耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"tool"},
)

// LLMCallTotal 模型调用次数
var LLMCallTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "agent_llm_call_total",
		Help: "模型调用次数",
	},
	[]string{"provider", "outcome"}, // ok | error
)

// SearchCallTotal 搜索调用次数
var SearchCallTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "agent_search_call_total",
		Help: "搜索调用次数",
	},
	[]string{"provider", "outcome"}, // ok | error | cache_hit
)

// RateLimitWaitSeconds 限流等待耗时
var RateLimitWaitSeconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "agent_rate_limit_wait_seconds",
		Help:    "限流等待耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"kind", "provider"},
)

// BatchBusy 批处理中正在执行的会话数
var BatchBusy = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "agent_batch_busy",
		Help: "批处理中正在执行的会话数",
	},
)

// ScoreAccuracy 最近一次评分的准确率
var ScoreAccuracy = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "agent_score_accuracy",
		Help: "最近一次评分的准确率",
	},
	[]string{"response_type"},
)

// WritePrometheus 将 Prometheus 文本格式写入 w（供 Hertz 等复用）
func WritePrometheus(w io.Writer) error {
	metrics, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range metrics {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
