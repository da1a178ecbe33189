package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"
)

// validateRequest — то, что api пересылает auth-сервису для проверки подписи.
type validateRequest struct {
	SessionID string `json:"session_id"`
	Timestamp string `json:"timestamp"`
	Signature string `json:"signature"`
	Method    string `json:"method"`
	Path      string `json:"path"`
	Body      string `json:"body"`
}

// AuthServiceValidate проверяет подпись запроса через auth-сервис
// (POST /internal/validate) и кладёт user_id в контекст.
func AuthServiceValidate(authServiceURL string, client *http.Client) func(http.Handler) http.Handler {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	validateURL := strings.TrimSuffix(authServiceURL, "/") + "/internal/validate"
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sig, ok := extractSignedRequest(r)
			if !ok {
				denySignIn(w)
				return
			}
			var body []byte
			if r.Body != nil {
				var err error
				body, err = io.ReadAll(r.Body)
				if err != nil {
					http.Error(w, `{"error":"bad request"}`, http.StatusBadRequest)
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))
			}
			// Подписывается только pathname без query; multipart клиент
			// подписывает с пустым телом, проверяем так же.
			bodyForSignature := string(body)
			if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
				bodyForSignature = ""
			}
			payload, _ := json.Marshal(validateRequest{
				SessionID: sig.SessionID,
				Timestamp: sig.Timestamp,
				Signature: sig.Signature,
				Method:    r.Method,
				Path:      r.URL.Path,
				Body:      bodyForSignature,
			})
			req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, validateURL, bytes.NewReader(payload))
			if err != nil {
				http.Error(w, `{"error":"internal"}`, http.StatusInternalServerError)
				return
			}
			req.Header.Set("Content-Type", "application/json")
			resp, err := client.Do(req)
			if err != nil {
				denySignIn(w)
				return
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				denySignIn(w)
				return
			}
			var result struct {
				UserID string `json:"user_id"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&result); err != nil || result.UserID == "" {
				denySignIn(w)
				return
			}
			ctx := context.WithValue(r.Context(), UserIDKey, result.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
