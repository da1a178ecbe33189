package middleware

import "net/http"

// signedRequest — реквизиты HMAC-подписи запроса. Берутся из заголовков,
// для WebSocket (где свои заголовки не выставить) — из query.
type signedRequest struct {
	SessionID string
	Timestamp string
	Signature string
}

func headerOrQuery(r *http.Request, header, query string) string {
	if v := r.Header.Get(header); v != "" {
		return v
	}
	return r.URL.Query().Get(query)
}

func extractSignedRequest(r *http.Request) (signedRequest, bool) {
	s := signedRequest{
		SessionID: headerOrQuery(r, "X-Session-Id", "session_id"),
		Timestamp: headerOrQuery(r, "X-Timestamp", "timestamp"),
		Signature: headerOrQuery(r, "X-Signature", "signature"),
	}
	return s, s.SessionID != "" && s.Timestamp != "" && s.Signature != ""
}

func denySignIn(w http.ResponseWriter) {
	http.Error(w, `{"error":"sign in required"}`, http.StatusUnauthorized)
}
