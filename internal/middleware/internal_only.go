package middleware

import (
	"net"
	"net/http"
	"os"
	"strings"
)

// InternalOnly пропускает запрос только из приватной сети или с заголовком
// X-Internal-Secret, равным INTERNAL_API_SECRET. Так защищены /internal/validate
// в auth и /api/notify в push: в проде эти сервисы наружу не экспонируются,
// секрет нужен только для схем, где сервисы разнесены по сетям.
func InternalOnly(next http.Handler) http.Handler {
	secret := strings.TrimSpace(os.Getenv("INTERNAL_API_SECRET"))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if secret != "" && r.Header.Get("X-Internal-Secret") == secret {
			next.ServeHTTP(w, r)
			return
		}
		if ip := forwardedIP(r); ip != "" && isPrivateIP(ip) {
			next.ServeHTTP(w, r)
			return
		}
		http.Error(w, "forbidden", http.StatusForbidden)
	})
}

func forwardedIP(r *http.Request) string {
	if x := r.Header.Get("X-Real-Ip"); x != "" {
		return x
	}
	if x := r.Header.Get("X-Forwarded-For"); x != "" {
		if idx := strings.Index(x, ","); idx > 0 {
			return strings.TrimSpace(x[:idx])
		}
		return x
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func isPrivateIP(s string) bool {
	ip := net.ParseIP(s)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate()
}
