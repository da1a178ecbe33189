package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/friendforge/internal/feed"
	"github.com/friendforge/internal/logger"
	"github.com/friendforge/internal/metrics"
	"github.com/friendforge/internal/model"
	"github.com/friendforge/internal/repository"
	"github.com/friendforge/internal/stream"
)

var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrSelfMessage  = errors.New("cannot message yourself")
	ErrNotOwner     = errors.New("not the message owner")
)

// tsFormat — RFC 3339 UTC с фиксированной шириной долей секунды: только
// тогда побайтовое сравнение строк совпадает с хронологией.
const tsFormat = "2006-01-02T15:04:05.000000000Z"

// PushNotifier отправляет пуш-уведомления. Если nil — пуши не отправляются.
type PushNotifier interface {
	Notify(ctx context.Context, userID, title, body string, data map[string]string)
}

// MessageService — единый путь записи сообщений для REST и WebSocket:
// сначала репозиторий, затем публикация изменения в направление
// sender -> receiver. Подписчики обеих сторон получают событие и
// перестраивают свою ленту; оптимистичной локальной вставки нет.
type MessageService struct {
	msgRepo  *repository.MessageRepository
	userRepo *repository.UserRepository
	broker   *stream.Broker
	push     PushNotifier
}

func NewMessageService(msgRepo *repository.MessageRepository, userRepo *repository.UserRepository, broker *stream.Broker, push PushNotifier) *MessageService {
	return &MessageService{msgRepo: msgRepo, userRepo: userRepo, broker: broker, push: push}
}

// Send сохраняет сообщение и публикует событие added. Пустой после trim
// текст и отправка самому себе — отказ без записи.
func (s *MessageService) Send(ctx context.Context, senderID, receiverID, content string) (*model.Message, error) {
	defer logger.DeferLogDuration("messageService.Send", time.Now())()
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}
	if receiverID == senderID {
		return nil, ErrSelfMessage
	}
	if _, err := s.userRepo.GetByID(ctx, receiverID); err != nil {
		return nil, fmt.Errorf("messageService.Send receiver: %w", err)
	}

	m := &model.Message{
		ID:         uuid.New().String(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		Timestamp:  time.Now().UTC().Format(tsFormat),
	}
	if err := s.msgRepo.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("messageService.Send: %w", err)
	}
	metrics.MessagesTotal.WithLabelValues("sent").Inc()

	s.publish(m.SenderID, m.ReceiverID, feed.Added(*m))
	s.notifyReceiver(m)
	return m, nil
}

// Edit меняет текст собственного сообщения и публикует событие modified.
func (s *MessageService) Edit(ctx context.Context, editorID, messageID, content string) (*model.Message, error) {
	defer logger.DeferLogDuration("messageService.Edit", time.Now())()
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}
	m, err := s.msgRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if m.SenderID != editorID {
		return nil, ErrNotOwner
	}
	if err := s.msgRepo.UpdateContent(ctx, messageID, content); err != nil {
		return nil, err
	}
	m.Content = content
	metrics.MessagesTotal.WithLabelValues("edited").Inc()

	s.publish(m.SenderID, m.ReceiverID, feed.Modified(*m))
	return m, nil
}

// Delete удаляет собственное сообщение и публикует событие removed.
// Повторное удаление того же id безвредно для подписчиков.
func (s *MessageService) Delete(ctx context.Context, ownerID, messageID string) error {
	defer logger.DeferLogDuration("messageService.Delete", time.Now())()
	m, err := s.msgRepo.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if m.SenderID != ownerID {
		return ErrNotOwner
	}
	if err := s.msgRepo.Delete(ctx, messageID); err != nil {
		return err
	}
	metrics.MessagesTotal.WithLabelValues("deleted").Inc()

	s.publish(m.SenderID, m.ReceiverID, feed.Removed(messageID))
	return nil
}

func (s *MessageService) publish(senderID, receiverID string, changes ...feed.Change) {
	d := stream.Direction{SenderID: senderID, ReceiverID: receiverID}
	if err := s.broker.Publish(d, changes); err != nil {
		logger.Errorf("messageService publish %s: %v", d.Subject(), err)
	}
}

func (s *MessageService) notifyReceiver(m *model.Message) {
	if s.push == nil {
		return
	}
	title := "Новое сообщение"
	if sender, err := s.userRepo.GetByID(context.Background(), m.SenderID); err == nil && sender.Name != "" {
		title = sender.Name
	}
	body := m.Content
	if len(body) > 120 {
		body = body[:117] + "..."
	}
	data := map[string]string{"sender_id": m.SenderID, "message_id": m.ID}
	go s.push.Notify(context.Background(), m.ReceiverID, title, body, data)
}
