package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "teamdesk_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
	notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teamdesk_notifications_total",
			Help: "Notifications written, by kind and result",
		},
		[]string{"kind", "result"},
	)
	realtimeEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teamdesk_realtime_events_total",
			Help: "Realtime events emitted, by event and result",
		},
		[]string{"event", "result"},
	)
	progressRecomputes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teamdesk_progress_recomputes_total",
			Help: "Project progress recomputations, by whether the value changed",
		},
		[]string{"changed"},
	)
	deadlineReminders = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "teamdesk_deadline_reminders_total",
			Help: "Deadline reminder notifications sent by the scanner",
		},
	)
)

// PrometheusMiddleware records request duration by chi route pattern.
func PrometheusMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		httpRequestDuration.WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).Observe(time.Since(start).Seconds())
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

func RecordNotification(kind string, ok bool) {
	notifications.WithLabelValues(kind, result(ok)).Inc()
}

func RecordRealtime(event string, ok bool) {
	realtimeEvents.WithLabelValues(event, result(ok)).Inc()
}

func RecordRecompute(changed bool) {
	progressRecomputes.WithLabelValues(strconv.FormatBool(changed)).Inc()
}

func RecordDeadlineReminders(sent int) {
	if sent > 0 {
		deadlineReminders.Add(float64(sent))
	}
}
