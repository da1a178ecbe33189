package middleware

import "context"

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	SessionIDKey contextKey = "session_id"
)

// GetUserID — user_id, положенный AuthServiceValidate (api) или SessionAuth (auth).
// Пустая строка, если запрос не аутентифицирован.
func GetUserID(ctx context.Context) string {
	v, _ := ctx.Value(UserIDKey).(string)
	return v
}

// GetSessionID — id сессии, которой подписан текущий запрос.
func GetSessionID(ctx context.Context) string {
	v, _ := ctx.Value(SessionIDKey).(string)
	return v
}
