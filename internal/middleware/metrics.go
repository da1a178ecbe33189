package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/friendforge/internal/metrics"
)

// Metrics пишет длительность обработки запроса в Prometheus-гистограмму.
// WebSocket-запросы пропускаются: их время жизни — это время соединения.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		next.ServeHTTP(w, r)
		metrics.HTTPDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
	})
}
