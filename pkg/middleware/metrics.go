package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ゲートの判定結果を表すメトリクスのラベル値。
const (
	outcomeContinue          = "continue"
	outcomeRedirectSignIn    = "redirect_signin"
	outcomeRedirectDashboard = "redirect_dashboard"
	outcomeError             = "error"
)

// GateMetrics はルートゲートのPrometheusメトリクス。
// nilの場合は何も記録しない。
type GateMetrics struct {
	decisions     *prometheus.CounterVec
	sessionLookup prometheus.Histogram
}

// NewGateMetrics はメトリクスを生成し、指定のレジストリに登録する。
func NewGateMetrics(reg prometheus.Registerer) *GateMetrics {
	factory := promauto.With(reg)

	return &GateMetrics{
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authgate",
			Subsystem: "gate",
			Name:      "decisions_total",
			Help:      "Total number of route gate decisions by outcome",
		}, []string{"outcome"}),

		sessionLookup: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "authgate",
			Subsystem: "gate",
			Name:      "session_lookup_duration_seconds",
			Help:      "Session lookup duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// observeDecision は判定結果を記録する。
func (m *GateMetrics) observeDecision(d Decision, err error) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(outcomeOf(d, err)).Inc()
}

// observeLookup はセッション取得の所要時間を記録する。
func (m *GateMetrics) observeLookup(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.sessionLookup.Observe(elapsed.Seconds())
}

// outcomeOf は判定結果をラベル値に変換する。
func outcomeOf(d Decision, err error) string {
	switch {
	case err != nil:
		return outcomeError
	case d.Redirect == SignInPath:
		return outcomeRedirectSignIn
	case d.IsRedirect():
		return outcomeRedirectDashboard
	default:
		return outcomeContinue
	}
}
