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

// SessionWriter is the view of the store available while a speaker's lock is held.
type SessionWriter interface {
	HasOverlap(ctx context.Context, speakerID int64, start, end time.Time) (bool, error)
	Insert(ctx context.Context, s *domain.Session) (*domain.Session, error)
}

type SessionRepository interface {
	// WithSpeakerLock runs fn in a transaction that holds an exclusive lock on
	// speakerID. The transaction commits only when fn returns nil.
	WithSpeakerLock(ctx context.Context, speakerID int64, fn func(ctx context.Context, tx SessionWriter) error) error
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]domain.Session, error)
	ListBySpeaker(ctx context.Context, speakerID int64, limit, offset int) ([]domain.Session, error)
	ListBySpeakerAndDate(ctx context.Context, speakerID int64, date string) ([]domain.Session, error)
	FindByCalendarEventID(ctx context.Context, eventID string) (*domain.Session, error)
}

type sessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(pool *pgxpool.Pool) SessionRepository {
	return &sessionRepository{pool: pool}
}

const sessionCols = `id, user_id, speaker_id, to_char(date, 'YYYY-MM-DD'), time,
start_at, end_at, calendar_event_id, calendar_link, created_at`

func scanSession(row pgx.Row) (*domain.Session, error) {
	var s domain.Session
	err := row.Scan(
		&s.ID, &s.UserID, &s.SpeakerID, &s.Date, &s.Time,
		&s.StartAt, &s.EndAt, &s.CalendarEventID, &s.CalendarLink, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *sessionRepository) WithSpeakerLock(ctx context.Context, speakerID int64, fn func(ctx context.Context, tx SessionWriter) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, speakerID); err != nil {
		return fmt.Errorf("lock speaker %d: %w", speakerID, err)
	}

	if err := fn(ctx, &txSessionWriter{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		if database.IsOverlapViolation(err) {
			return fmt.Errorf("%w: speaker not available at this time", domain.ErrConflict)
		}
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type txSessionWriter struct {
	tx pgx.Tx
}

func (w *txSessionWriter) HasOverlap(ctx context.Context, speakerID int64, start, end time.Time) (bool, error) {
	const q = `SELECT EXISTS (
		SELECT 1 FROM sessions
		WHERE speaker_id = $1 AND start_at < $3 AND end_at > $2
	)`
	var exists bool
	if err := w.tx.QueryRow(ctx, q, speakerID, start, end).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (w *txSessionWriter) Insert(ctx context.Context, s *domain.Session) (*domain.Session, error) {
	const q = `INSERT INTO sessions (
		user_id, speaker_id, date, time, start_at, end_at, calendar_event_id, calendar_link
	) VALUES ($1, $2, $3::date, $4, $5, $6, $7, $8)
	RETURNING ` + sessionCols

	out, err := scanSession(w.tx.QueryRow(ctx, q,
		s.UserID, s.SpeakerID, s.Date, s.Time, s.StartAt, s.EndAt, s.CalendarEventID, s.CalendarLink,
	))
	switch {
	case database.IsOverlapViolation(err):
		return nil, fmt.Errorf("%w: speaker not available at this time", domain.ErrConflict)
	case database.PgCode(err) == database.ForeignKeyViolation:
		return nil, fmt.Errorf("%w: user or speaker no longer exists", domain.ErrNotFound)
	}
	return out, err
}

func (r *sessionRepository) FindByCalendarEventID(ctx context.Context, eventID string) (*domain.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	s, err := scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionCols+` FROM sessions WHERE calendar_event_id = $1`, eventID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

func (r *sessionRepository) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]domain.Session, error) {
	return r.list(ctx, `SELECT `+sessionCols+` FROM sessions WHERE user_id=$1 ORDER BY start_at DESC LIMIT $2 OFFSET $3`,
		userID, clampLimit(limit), clampOffset(offset))
}

func (r *sessionRepository) ListBySpeaker(ctx context.Context, speakerID int64, limit, offset int) ([]domain.Session, error) {
	return r.list(ctx, `SELECT `+sessionCols+` FROM sessions WHERE speaker_id=$1 ORDER BY start_at DESC LIMIT $2 OFFSET $3`,
		speakerID, clampLimit(limit), clampOffset(offset))
}

func (r *sessionRepository) ListBySpeakerAndDate(ctx context.Context, speakerID int64, date string) ([]domain.Session, error) {
	return r.list(ctx, `SELECT `+sessionCols+` FROM sessions WHERE speaker_id=$1 AND date=$2::date ORDER BY start_at`,
		speakerID, date)
}

func (r *sessionRepository) list(ctx context.Context, q string, args ...any) ([]domain.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Session, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 20
	}
	return limit
}

func clampOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
