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

var ErrNotFound = errors.New("not found")

// userCols — список колонок для SELECT (порядок соответствует scanUser).
const userCols = `id, email, name, university, extra, avatar_url, cv_url, skills, created_at, disabled_at`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func scanUser(s interface{ Scan(dest ...any) error }, u *model.User) error {
	return s.Scan(&u.ID, &u.Email, &u.Name, &u.University, &u.Extra, &u.AvatarURL, &u.CVURL, &u.Skills, &u.CreatedAt, &u.DisabledAt)
}

func (r *UserRepository) Create(ctx context.Context, u *model.User) error {
	defer logger.DeferLogDuration("user.Create", time.Now())()
	skills := u.Skills
	if skills == nil {
		skills = []model.Skill{}
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, email, name, university, extra, avatar_url, cv_url, skills, created_at, disabled_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		u.ID, u.Email, u.Name, u.University, u.Extra, u.AvatarURL, u.CVURL, skills, u.CreatedAt, u.DisabledAt,
	)
	if err != nil {
		return fmt.Errorf("userRepo.Create: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	defer logger.DeferLogDuration("user.GetByID", time.Now())()
	u := &model.User{}
	row := r.pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id)
	if err := scanUser(row, u); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("userRepo.GetByID: %w", err)
	}
	return u, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	defer logger.DeferLogDuration("user.GetByEmail", time.Now())()
	u := &model.User{}
	row := r.pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE email = $1`, email)
	if err := scanUser(row, u); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("userRepo.GetByEmail: %w", err)
	}
	return u, nil
}

// ListOthers возвращает всех пользователей кроме excludeID (пул кандидатов для подбора).
func (r *UserRepository) ListOthers(ctx context.Context, excludeID string, limit int) ([]model.User, error) {
	defer logger.DeferLogDuration("user.ListOthers", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+userCols+` FROM users WHERE id <> $1 AND disabled_at IS NULL ORDER BY name LIMIT $2`,
		excludeID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("userRepo.ListOthers: %w", err)
	}
	defer rows.Close()
	users := make([]model.User, 0, limit)
	for rows.Next() {
		var u model.User
		if err := scanUser(rows, &u); err != nil {
			return nil, fmt.Errorf("userRepo.ListOthers scan: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("userRepo.ListOthers rows: %w", err)
	}
	return users, nil
}

func (r *UserRepository) SearchByName(ctx context.Context, query, excludeID string, limit int) ([]model.User, error) {
	defer logger.DeferLogDuration("user.SearchByName", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+userCols+` FROM users
		 WHERE name ILIKE $1 AND id <> $2 AND disabled_at IS NULL
		 ORDER BY name LIMIT $3`,
		"%"+query+"%", excludeID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("userRepo.SearchByName query: %w", err)
	}
	defer rows.Close()

	users := make([]model.User, 0, limit)
	for rows.Next() {
		var u model.User
		if err := scanUser(rows, &u); err != nil {
			return nil, fmt.Errorf("userRepo.SearchByName scan: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("userRepo.SearchByName rows: %w", err)
	}
	return users, nil
}

// UpdateProfile перезаписывает анкетные поля профиля (после загрузки CV или при редактировании).
func (r *UserRepository) UpdateProfile(ctx context.Context, u *model.User) error {
	defer logger.DeferLogDuration("user.UpdateProfile", time.Now())()
	skills := u.Skills
	if skills == nil {
		skills = []model.Skill{}
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET name = $1, university = $2, extra = $3, avatar_url = $4, cv_url = $5, skills = $6
		 WHERE id = $7`,
		u.Name, u.University, u.Extra, u.AvatarURL, u.CVURL, skills, u.ID,
	)
	if err != nil {
		return fmt.Errorf("userRepo.UpdateProfile: %w", err)
	}
	return nil
}

// GetFriendIDs — список id друзей, по строкам friendships от лица userID.
func (r *UserRepository) GetFriendIDs(ctx context.Context, userID string) ([]string, error) {
	defer logger.DeferLogDuration("user.GetFriendIDs", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT friend_id FROM friendships WHERE user_id = $1 ORDER BY created_at`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("userRepo.GetFriendIDs: %w", err)
	}
	defer rows.Close()
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("userRepo.GetFriendIDs scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *UserRepository) AreFriends(ctx context.Context, userID, otherID string) (bool, error) {
	defer logger.DeferLogDuration("user.AreFriends", time.Now())()
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM friendships WHERE user_id = $1 AND friend_id = $2)`,
		userID, otherID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("userRepo.AreFriends: %w", err)
	}
	return exists, nil
}

// SetDisabled выставляет или снимает отключение пользователя.
func (r *UserRepository) SetDisabled(ctx context.Context, userID string, disabled bool) error {
	defer logger.DeferLogDuration("user.SetDisabled", time.Now())()
	if disabled {
		_, err := r.pool.Exec(ctx, `UPDATE users SET disabled_at = NOW() WHERE id = $1`, userID)
		if err != nil {
			return fmt.Errorf("userRepo.SetDisabled: %w", err)
		}
	} else {
		_, err := r.pool.Exec(ctx, `UPDATE users SET disabled_at = NULL WHERE id = $1`, userID)
		if err != nil {
			return fmt.Errorf("userRepo.SetDisabled: %w", err)
		}
	}
	return nil
}
