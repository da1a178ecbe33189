package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/friendforge/internal/logger"
)

// Client — HTTP-клиент push-сервиса. Пустой baseURL выключает пуши:
// все методы становятся no-op, api работает без push-сервиса.
type Client struct {
	baseURL        string
	internalSecret string
	httpClient     *http.Client
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		return &Client{}
	}
	return &Client{
		baseURL:        strings.TrimSuffix(baseURL, "/"),
		internalSecret: strings.TrimSpace(os.Getenv("INTERNAL_API_SECRET")),
		httpClient:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) enabled() bool { return c.baseURL != "" }

// PushSubscription — подписка, как её отдаёт браузерный PushManager.
type PushSubscription struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

type SubscribeRequest struct {
	UserID       string           `json:"user_id"`
	Subscription PushSubscription `json:"subscription"`
}

// NotifyRequest — уведомление пользователю: новое сообщение, входящая
// или принятая заявка в друзья. Data уходит в сервис-воркер для роутинга клика.
type NotifyRequest struct {
	UserID string            `json:"user_id"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data,omitempty"`
}

func (c *Client) post(ctx context.Context, method, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.internalSecret != "" {
		req.Header.Set("X-Internal-Secret", c.internalSecret)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("push %s: status %d", path, resp.StatusCode)
	}
	return nil
}

func (c *Client) Subscribe(ctx context.Context, userID string, sub PushSubscription) error {
	if !c.enabled() {
		return nil
	}
	return c.post(ctx, http.MethodPost, "/api/subscribe", SubscribeRequest{UserID: userID, Subscription: sub})
}

func (c *Client) Unsubscribe(ctx context.Context, userID, endpoint string) error {
	if !c.enabled() {
		return nil
	}
	return c.post(ctx, http.MethodDelete, "/api/subscribe", map[string]string{"user_id": userID, "endpoint": endpoint})
}

// Notify — best effort: ошибки логируются и не всплывают к вызывающему,
// доставка пуша не должна ломать отправку сообщения.
func (c *Client) Notify(ctx context.Context, userID, title, body string, data map[string]string) {
	if !c.enabled() {
		return
	}
	req := NotifyRequest{UserID: userID, Title: title, Body: body, Data: data}
	if err := c.post(ctx, http.MethodPost, "/api/notify", req); err != nil {
		logger.Errorf("push notify user_id=%s: %v", userID, err)
	}
}
