package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/oauth2"
)

// CalendarTokenRepository stores the one OAuth token the calendar notifier uses.
type CalendarTokenRepository struct {
	pool *pgxpool.Pool
}

func NewCalendarTokenRepository(pool *pgxpool.Pool) *CalendarTokenRepository {
	return &CalendarTokenRepository{pool: pool}
}

func (r *CalendarTokenRepository) Load(ctx context.Context) (*oauth2.Token, error) {
	const q = `SELECT access_token, refresh_token, token_type, expiry FROM calendar_tokens WHERE id=1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var (
		tok    oauth2.Token
		expiry *time.Time
	)
	err := r.pool.QueryRow(ctx, q).Scan(&tok.AccessToken, &tok.RefreshToken, &tok.TokenType, &expiry)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if expiry != nil {
		tok.Expiry = *expiry
	}
	return &tok, nil
}

// Save upserts the token. A refresh without a new refresh token keeps the stored one.
func (r *CalendarTokenRepository) Save(ctx context.Context, tok *oauth2.Token) error {
	const q = `INSERT INTO calendar_tokens (id, access_token, refresh_token, token_type, expiry, updated_at)
		VALUES (1, $1, $2, $3, $4, now())
		ON CONFLICT (id) DO UPDATE SET
			access_token  = EXCLUDED.access_token,
			refresh_token = COALESCE(NULLIF(EXCLUDED.refresh_token, ''), calendar_tokens.refresh_token),
			token_type    = EXCLUDED.token_type,
			expiry        = EXCLUDED.expiry,
			updated_at    = now()`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var expiry *time.Time
	if !tok.Expiry.IsZero() {
		expiry = &tok.Expiry
	}
	_, err := r.pool.Exec(ctx, q, tok.AccessToken, tok.RefreshToken, tok.TokenType, expiry)
	return err
}
