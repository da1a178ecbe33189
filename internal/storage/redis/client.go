package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Код живёт 5 минут (время на ввод из письма); не больше 10 запросов кода
// на email за 10 минут. Секрет сессии держим столько же, сколько сессию в БД.
const (
	otpTTL           = 5 * time.Minute
	rateLimitWindow  = 10 * time.Minute
	rateLimitMax     = 10
	sessionSecretTTL = 30 * 24 * time.Hour
)

const (
	otpKey    = "auth:otp:"
	limitKey  = "auth:otp_rl:"
	secretKey = "auth:sess:"
)

type Client struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

// SetOTP кладёт код как есть: сверяем строки, хэш здесь ничего не добавляет.
func (c *Client) SetOTP(ctx context.Context, email, code string) error {
	return c.cli.Set(ctx, otpKey+email, code, otpTTL).Err()
}

// GetOTP не удаляет ключ: код гасится отдельно после успешной верификации.
func (c *Client) GetOTP(ctx context.Context, email string) (string, error) {
	val, err := c.cli.Get(ctx, otpKey+email).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

// GetOTPTTL — оставшееся время жизни кода; 0, если кода нет.
func (c *Client) GetOTPTTL(ctx context.Context, email string) (time.Duration, error) {
	d, err := c.cli.TTL(ctx, otpKey+email).Result()
	if err != nil || d < 0 {
		return 0, err
	}
	return d, nil
}

func (c *Client) DeleteOTP(ctx context.Context, email string) error {
	return c.cli.Del(ctx, otpKey+email).Err()
}

// CheckRateLimit — INCR с EXPIRE на первом обращении; при превышении
// вызывающая сторона отвечает 429.
func (c *Client) CheckRateLimit(ctx context.Context, email string) (allowed bool, err error) {
	key := limitKey + email
	n, err := c.cli.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if n == 1 {
		c.cli.Expire(ctx, key, rateLimitWindow)
	}
	return n <= rateLimitMax, nil
}

func (c *Client) SetSessionSecret(ctx context.Context, sessionID, secret string) error {
	return c.cli.Set(ctx, secretKey+sessionID, secret, sessionSecretTTL).Err()
}

func (c *Client) GetSessionSecret(ctx context.Context, sessionID string) (string, error) {
	val, err := c.cli.Get(ctx, secretKey+sessionID).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

func (c *Client) DeleteSessionSecret(ctx context.Context, sessionID string) error {
	return c.cli.Del(ctx, secretKey+sessionID).Err()
}
