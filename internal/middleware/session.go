package middleware

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/friendforge/internal/logger"
	"github.com/friendforge/internal/repository"
	"github.com/friendforge/internal/storage"
)

// Допустимый разбег часов клиента и сервера при проверке X-Timestamp.
const TimestampSkew = 30 * time.Second

// SessionAuth проверяет HMAC-подпись запроса внутри auth-сервиса:
// подпись считается от method + path + body + timestamp секретом сессии.
// Совпавшая подпись кладёт user_id и session_id в контекст.
func SessionAuth(sessionRepo *repository.SessionRepository, store storage.AuthStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sig, ok := extractSignedRequest(r)
			if !ok {
				denySignIn(w)
				return
			}
			ts, err := strconv.ParseInt(sig.Timestamp, 10, 64)
			if err != nil {
				denySignIn(w)
				return
			}
			reqTime := time.Unix(ts, 0)
			if time.Since(reqTime) > TimestampSkew || time.Until(reqTime) > TimestampSkew {
				denySignIn(w)
				return
			}
			var body []byte
			if r.Body != nil {
				body, err = io.ReadAll(r.Body)
				if err != nil {
					http.Error(w, `{"error":"bad request"}`, http.StatusBadRequest)
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))
			}
			// Секрет сессии лежит в store (Redis или БД в -dev), base64 от 32 байт.
			secretB64, err := store.GetSessionSecret(r.Context(), sig.SessionID)
			if err != nil || secretB64 == "" {
				denySignIn(w)
				return
			}
			secret, err := base64.StdEncoding.DecodeString(secretB64)
			if err != nil || len(secret) != 32 {
				denySignIn(w)
				return
			}
			mac := hmac.New(sha256.New, secret)
			mac.Write([]byte(r.Method + r.URL.Path + string(body) + sig.Timestamp))
			expected := hex.EncodeToString(mac.Sum(nil))
			if !hmac.Equal([]byte(sig.Signature), []byte(expected)) {
				denySignIn(w)
				return
			}
			session, err := sessionRepo.GetByID(r.Context(), sig.SessionID)
			if err != nil || session == nil {
				denySignIn(w)
				return
			}
			if err := sessionRepo.UpdateLastSeen(r.Context(), sig.SessionID, time.Now().UTC()); err != nil {
				logger.Errorf("session middleware UpdateLastSeen session_id=%s: %v", MaskSessionID(sig.SessionID), err)
			}
			ctx := context.WithValue(r.Context(), UserIDKey, session.UserID)
			ctx = context.WithValue(ctx, SessionIDKey, sig.SessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// MaskSessionID — session_id в логах только первыми четырьмя символами.
func MaskSessionID(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "***"
}
