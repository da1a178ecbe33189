package storage

import (
	"context"
	"time"
)

// AuthStore — быстрое хранилище стороны auth: одноразовые коды входа,
// их rate limit и секреты сессий для HMAC-подписи запросов.
// Бэкенды: redis.Client в проде, memory.Client и devstore.Client в -dev.
type AuthStore interface {
	SetOTP(ctx context.Context, email, code string) error
	GetOTP(ctx context.Context, email string) (string, error)
	GetOTPTTL(ctx context.Context, email string) (time.Duration, error)
	DeleteOTP(ctx context.Context, email string) error
	CheckRateLimit(ctx context.Context, email string) (allowed bool, err error)
	SetSessionSecret(ctx context.Context, sessionID, secret string) error
	GetSessionSecret(ctx context.Context, sessionID string) (string, error)
	DeleteSessionSecret(ctx context.Context, sessionID string) error
	Close() error
}
