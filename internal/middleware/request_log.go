package middleware

import (
	"net/http"
	"time"

	"github.com/friendforge/internal/logger"
)

// RequestLog логирует метод, путь и длительность запроса. Health-пробы и
// скрейп метрик не логируются, иначе они забивают лог.
func RequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		defer logger.DeferLogDuration("http "+r.Method+" "+r.URL.Path, time.Now())()
		next.ServeHTTP(w, r)
	})
}
