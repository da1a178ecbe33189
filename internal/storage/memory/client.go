// Package memory — in-process реализация storage.AuthStore для запуска
// без Redis. TTL соблюдаются лениво: просроченные записи отбрасываются
// при чтении.
package memory

import (
	"context"
	"sync"
	"time"
)

const (
	otpTTL           = 5 * time.Minute
	rateLimitWindow  = 10 * time.Minute
	rateLimitMax     = 10
	sessionSecretTTL = 30 * 24 * time.Hour
)

type record struct {
	val       string
	expiresAt time.Time
}

func (r record) live(now time.Time) bool { return now.Before(r.expiresAt) }

type Client struct {
	mu       sync.RWMutex
	codes    map[string]record
	attempts map[string][]time.Time
	secrets  map[string]record
}

func New() *Client {
	return &Client{
		codes:    make(map[string]record),
		attempts: make(map[string][]time.Time),
		secrets:  make(map[string]record),
	}
}

func (c *Client) Close() error { return nil }

func (c *Client) SetOTP(ctx context.Context, email, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codes[email] = record{val: code, expiresAt: time.Now().Add(otpTTL)}
	return nil
}

func (c *Client) GetOTP(ctx context.Context, email string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.codes[email]
	if !ok || !r.live(time.Now()) {
		return "", nil
	}
	return r.val, nil
}

func (c *Client) GetOTPTTL(ctx context.Context, email string) (time.Duration, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.codes[email]
	now := time.Now()
	if !ok || !r.live(now) {
		return 0, nil
	}
	return r.expiresAt.Sub(now), nil
}

func (c *Client) DeleteOTP(ctx context.Context, email string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.codes, email)
	return nil
}

func (c *Client) CheckRateLimit(ctx context.Context, email string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	cutoff := now.Add(-rateLimitWindow)
	kept := c.attempts[email][:0]
	for _, t := range c.attempts[email] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= rateLimitMax {
		c.attempts[email] = kept
		return false, nil
	}
	c.attempts[email] = append(kept, now)
	return true, nil
}

func (c *Client) SetSessionSecret(ctx context.Context, sessionID, secret string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.secrets[sessionID] = record{val: secret, expiresAt: time.Now().Add(sessionSecretTTL)}
	return nil
}

func (c *Client) GetSessionSecret(ctx context.Context, sessionID string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.secrets[sessionID]
	if !ok || !r.live(time.Now()) {
		return "", nil
	}
	return r.val, nil
}

func (c *Client) DeleteSessionSecret(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.secrets, sessionID)
	return nil
}
