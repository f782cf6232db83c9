package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	// 引擎业务指标
	SessionsStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_sessions_started_total",
			Help: "Quiz sessions created, by quiz type",
		},
		[]string{"type"},
	)

	SessionsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_sessions_completed_total",
			Help: "Quiz sessions completed, by quiz type and outcome",
		},
		[]string{"type", "outcome"},
	)

	MasteryAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mastery_attempts_total",
			Help: "Mastery attempts recorded, by pass/fail",
		},
		[]string{"passed"},
	)

	AttemptDenials = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mastery_attempt_denials_total",
			Help: "Mastery attempt checks denied, by reason",
		},
		[]string{"reason"},
	)

	StreaksAchieved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "streaks_achieved_total",
			Help: "Streak targets reached",
		},
	)

	GatesUnlocked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gates_unlocked_total",
			Help: "Section gates unlocked, by cause (mastered/skip_ahead)",
		},
		[]string{"cause"},
	)
)

func Init() {
	prometheus.MustRegister(RequestCounter)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(SessionsStarted)
	prometheus.MustRegister(SessionsCompleted)
	prometheus.MustRegister(MasteryAttempts)
	prometheus.MustRegister(AttemptDenials)
	prometheus.MustRegister(StreaksAchieved)
	prometheus.MustRegister(GatesUnlocked)
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
