package middleware

import (
	"net/http"
	"sync"
	"time"
)

// Лимиты на /api/*: по IP до аутентификации, по user_id после. Лимит на
// пользователя ниже: фронтенд ходит редко, всплески гасит IP-лимит.
const (
	limitWindow  = time.Minute
	limitPerIP   = 240
	limitPerUser = 120
)

// slidingWindow считает события за окно по ключу; устаревшие метки
// вычищаются на каждом обращении к ключу.
type slidingWindow struct {
	mu     sync.Mutex
	hits   map[string][]time.Time
	max    int
	window time.Duration
}

func newSlidingWindow(max int, window time.Duration) *slidingWindow {
	return &slidingWindow{hits: make(map[string][]time.Time), max: max, window: window}
}

func (s *slidingWindow) allow(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	cutoff := now.Add(-s.window)
	kept := s.hits[key][:0]
	for _, t := range s.hits[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= s.max {
		s.hits[key] = kept
		return false
	}
	s.hits[key] = append(kept, now)
	return true
}

var (
	limitByIP   = newSlidingWindow(limitPerIP, limitWindow)
	limitByUser = newSlidingWindow(limitPerUser, limitWindow)
)

// RateLimitAPI отвечает 429 при превышении лимита по IP или по user_id.
func RateLimitAPI(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limitByIP.allow(forwardedIP(r)) {
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		if userID := GetUserID(r.Context()); userID != "" {
			if !limitByUser.allow("u:" + userID) {
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
