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

// ErrDuplicateRequest — между парой уже есть заявка в статусе pending или
// accepted, новую создавать нельзя.
var ErrDuplicateRequest = errors.New("request already exists")

// ErrNotPending — заявка уже обработана, повторный accept/reject запрещён.
var ErrNotPending = errors.New("request is not pending")

type RequestRepository struct {
	pool *pgxpool.Pool
}

func NewRequestRepository(pool *pgxpool.Pool) *RequestRepository {
	return &RequestRepository{pool: pool}
}

// Create вставляет pending-заявку. Дубликат ищем в обе стороны: если между
// парой уже есть pending или accepted, возвращаем ErrDuplicateRequest.
func (r *RequestRepository) Create(ctx context.Context, req *model.FriendRequest) error {
	defer logger.DeferLogDuration("request.Create", time.Now())()
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
		     SELECT 1 FROM friend_requests
		     WHERE ((from_uid = $1 AND to_uid = $2) OR (from_uid = $2 AND to_uid = $1))
		       AND status IN ('pending', 'accepted')
		 )`, req.FromUID, req.ToUID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("request.Create check: %w", err)
	}
	if exists {
		return ErrDuplicateRequest
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO friend_requests (id, from_uid, to_uid, status, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		req.ID, req.FromUID, req.ToUID, req.Status, req.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("request.Create: %w", err)
	}
	return nil
}

func (r *RequestRepository) GetByID(ctx context.Context, id string) (*model.FriendRequest, error) {
	defer logger.DeferLogDuration("request.GetByID", time.Now())()
	req := &model.FriendRequest{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, from_uid, to_uid, status, created_at FROM friend_requests WHERE id = $1`, id,
	).Scan(&req.ID, &req.FromUID, &req.ToUID, &req.Status, &req.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("request.GetByID: %w", err)
	}
	return req, nil
}

// ListIncoming — входящие pending-заявки с профилем отправителя.
func (r *RequestRepository) ListIncoming(ctx context.Context, toUID string) ([]model.FriendRequest, error) {
	defer logger.DeferLogDuration("request.ListIncoming", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT fr.id, fr.from_uid, fr.to_uid, fr.status, fr.created_at,
		        u.id, u.name, u.university, u.extra, u.avatar_url, u.cv_url, u.skills
		 FROM friend_requests fr
		 JOIN users u ON u.id = fr.from_uid
		 WHERE fr.to_uid = $1 AND fr.status = 'pending'
		 ORDER BY fr.created_at DESC`, toUID,
	)
	if err != nil {
		return nil, fmt.Errorf("request.ListIncoming query: %w", err)
	}
	defer rows.Close()

	requests := []model.FriendRequest{}
	for rows.Next() {
		var req model.FriendRequest
		from := &model.UserPublic{}
		if err := rows.Scan(&req.ID, &req.FromUID, &req.ToUID, &req.Status, &req.CreatedAt,
			&from.ID, &from.Name, &from.University, &from.Extra, &from.AvatarURL, &from.CVURL, &from.Skills); err != nil {
			return nil, fmt.Errorf("request.ListIncoming scan: %w", err)
		}
		req.From = from
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("request.ListIncoming rows: %w", err)
	}
	return requests, nil
}

// Accept принимает заявку одной транзакцией: статус -> accepted плюс обе
// строки дружбы. Либо всё, либо ничего: односторонняя дружба невозможна
// даже при падении между записями.
func (r *RequestRepository) Accept(ctx context.Context, requestID, toUID string) (*model.FriendRequest, error) {
	defer logger.DeferLogDuration("request.Accept", time.Now())()
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("request.Accept begin: %w", err)
	}
	defer tx.Rollback(ctx)

	req := &model.FriendRequest{}
	err = tx.QueryRow(ctx,
		`UPDATE friend_requests SET status = 'accepted'
		 WHERE id = $1 AND to_uid = $2 AND status = 'pending'
		 RETURNING id, from_uid, to_uid, status, created_at`,
		requestID, toUID,
	).Scan(&req.ID, &req.FromUID, &req.ToUID, &req.Status, &req.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, r.classifyAcceptMiss(ctx, requestID, toUID)
	}
	if err != nil {
		return nil, fmt.Errorf("request.Accept update: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO friendships (user_id, friend_id) VALUES ($1, $2), ($2, $1)
		 ON CONFLICT DO NOTHING`,
		req.FromUID, req.ToUID,
	)
	if err != nil {
		return nil, fmt.Errorf("request.Accept friendships: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("request.Accept commit: %w", err)
	}
	return req, nil
}

// Reject переводит pending-заявку в rejected. Только адресат.
func (r *RequestRepository) Reject(ctx context.Context, requestID, toUID string) (*model.FriendRequest, error) {
	defer logger.DeferLogDuration("request.Reject", time.Now())()
	req := &model.FriendRequest{}
	err := r.pool.QueryRow(ctx,
		`UPDATE friend_requests SET status = 'rejected'
		 WHERE id = $1 AND to_uid = $2 AND status = 'pending'
		 RETURNING id, from_uid, to_uid, status, created_at`,
		requestID, toUID,
	).Scan(&req.ID, &req.FromUID, &req.ToUID, &req.Status, &req.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, r.classifyAcceptMiss(ctx, requestID, toUID)
	}
	if err != nil {
		return nil, fmt.Errorf("request.Reject: %w", err)
	}
	return req, nil
}

// classifyAcceptMiss различает "заявки нет / не твоя" и "уже обработана".
func (r *RequestRepository) classifyAcceptMiss(ctx context.Context, requestID, toUID string) error {
	var status string
	err := r.pool.QueryRow(ctx,
		`SELECT status FROM friend_requests WHERE id = $1 AND to_uid = $2`,
		requestID, toUID,
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("request.classifyAcceptMiss: %w", err)
	}
	return ErrNotPending
}
