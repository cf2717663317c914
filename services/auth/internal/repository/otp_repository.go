package repository

import (
	"context"
	"errors"
	"time"

	"github.com/diagnosis/speakerhub/services/auth/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type OTPRepository interface {
	Create(ctx context.Context, userID int64, codeHash string, expiresAt time.Time) error
	// Latest returns the newest passcode for the user, or nil when none exists.
	Latest(ctx context.Context, userID int64) (*domain.OneTimePasscode, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

type otpRepository struct {
	pool *pgxpool.Pool
}

func NewOTPRepository(pool *pgxpool.Pool) OTPRepository {
	return &otpRepository{pool: pool}
}

func (r *otpRepository) Create(ctx context.Context, userID int64, codeHash string, expiresAt time.Time) error {
	const q = `
		INSERT INTO otps (user_id, code_hash, expires_at)
		VALUES ($1, $2, $3)`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, userID, codeHash, expiresAt)
	return err
}

func (r *otpRepository) Latest(ctx context.Context, userID int64) (*domain.OneTimePasscode, error) {
	const q = `
		SELECT id, user_id, code_hash, expires_at, created_at
		FROM otps
		WHERE user_id = $1
		ORDER BY id DESC
		LIMIT 1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var o domain.OneTimePasscode
	err := r.pool.QueryRow(ctx, q, userID).Scan(&o.ID, &o.UserID, &o.CodeHash, &o.ExpiresAt, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *otpRepository) DeleteExpired(ctx context.Context) (int64, error) {
	const q = `DELETE FROM otps WHERE expires_at < now() - interval '1 day'`

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
