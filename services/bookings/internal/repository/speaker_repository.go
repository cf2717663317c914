package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/diagnosis/speakerhub/pkg/database"
	"github.com/diagnosis/speakerhub/services/bookings/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SpeakerRepository interface {
	// Create inserts the profile and marks the user's profile complete in one transaction.
	Create(ctx context.Context, p *domain.SpeakerProfile) (*domain.SpeakerProfile, error)
	FindByUserID(ctx context.Context, userID int64) (*domain.SpeakerProfile, error)
	List(ctx context.Context, limit, offset int) ([]domain.SpeakerListing, error)
}

type speakerRepository struct {
	pool *pgxpool.Pool
}

func NewSpeakerRepository(pool *pgxpool.Pool) SpeakerRepository {
	return &speakerRepository{pool: pool}
}

func (r *speakerRepository) Create(ctx context.Context, p *domain.SpeakerProfile) (*domain.SpeakerProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	const insert = `INSERT INTO speakers (user_id, expertise, price_per_session)
		VALUES ($1, $2, $3)
		RETURNING user_id, expertise, price_per_session, created_at`

	var out domain.SpeakerProfile
	err = tx.QueryRow(ctx, insert, p.UserID, p.Expertise, p.PricePerSession).Scan(
		&out.UserID, &out.Expertise, &out.PricePerSession, &out.CreatedAt,
	)
	if database.IsUniqueViolation(err) {
		return nil, fmt.Errorf("%w: speaker profile already exists", domain.ErrConflict)
	}
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `UPDATE users SET is_profile_complete=true, updated_at=now() WHERE id=$1`, p.UserID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *speakerRepository) FindByUserID(ctx context.Context, userID int64) (*domain.SpeakerProfile, error) {
	const q = `SELECT user_id, expertise, price_per_session, created_at FROM speakers WHERE user_id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var p domain.SpeakerProfile
	err := r.pool.QueryRow(ctx, q, userID).Scan(&p.UserID, &p.Expertise, &p.PricePerSession, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *speakerRepository) List(ctx context.Context, limit, offset int) ([]domain.SpeakerListing, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	const q = `SELECT u.id, u.first_name, u.last_name, s.expertise, s.price_per_session
		FROM speakers s
		JOIN users u ON u.id = s.user_id
		WHERE u.role = 'speaker'
		ORDER BY u.id
		LIMIT $1 OFFSET $2`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.SpeakerListing, 0)
	for rows.Next() {
		var s domain.SpeakerListing
		if err := rows.Scan(&s.ID, &s.FirstName, &s.LastName, &s.Expertise, &s.PricePerSession); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
