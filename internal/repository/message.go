package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/friendforge/internal/logger"
	"github.com/friendforge/internal/model"
)

type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

func (r *MessageRepository) Create(ctx context.Context, m *model.Message) error {
	defer logger.DeferLogDuration("msg.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO messages (id, sender_id, receiver_id, content, ts)
		 VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.SenderID, m.ReceiverID, m.Content, m.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("msgRepo.Create: %w", err)
	}
	return nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*model.Message, error) {
	defer logger.DeferLogDuration("msg.GetByID", time.Now())()
	m := &model.Message{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, sender_id, receiver_id, content, ts FROM messages WHERE id = $1`, id,
	).Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &m.Timestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("msgRepo.GetByID: %w", err)
	}
	return m, nil
}

// ListDirection возвращает одну сторону переписки (sender -> receiver),
// отсортированную по ts как по тексту. Это стартовый снимок подписки.
func (r *MessageRepository) ListDirection(ctx context.Context, senderID, receiverID string) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.ListDirection", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT id, sender_id, receiver_id, content, ts
		 FROM messages
		 WHERE sender_id = $1 AND receiver_id = $2
		 ORDER BY ts`, senderID, receiverID,
	)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.ListDirection query: %w", err)
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("msgRepo.ListDirection scan: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("msgRepo.ListDirection rows: %w", err)
	}
	return messages, nil
}

// ListConversation возвращает обе стороны переписки между a и b одним
// срезом, отсортированным по ts. Используется для холодной загрузки без
// WebSocket.
func (r *MessageRepository) ListConversation(ctx context.Context, a, b string) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.ListConversation", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT id, sender_id, receiver_id, content, ts
		 FROM messages
		 WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
		 ORDER BY ts`, a, b,
	)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.ListConversation query: %w", err)
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("msgRepo.ListConversation scan: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("msgRepo.ListConversation rows: %w", err)
	}
	return messages, nil
}

// UpdateContent меняет текст сообщения; ts не трогаем, позиция в ленте
// сохраняется.
func (r *MessageRepository) UpdateContent(ctx context.Context, id, content string) error {
	defer logger.DeferLogDuration("msg.UpdateContent", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE messages SET content = $1 WHERE id = $2`, content, id,
	)
	if err != nil {
		return fmt.Errorf("msgRepo.UpdateContent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MessageRepository) Delete(ctx context.Context, id string) error {
	defer logger.DeferLogDuration("msg.Delete", time.Now())()
	_, err := r.pool.Exec(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("msgRepo.Delete: %w", err)
	}
	return nil
}
