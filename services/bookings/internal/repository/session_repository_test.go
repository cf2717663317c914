package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/diagnosis/speakerhub/pkg/database"
	"github.com/diagnosis/speakerhub/services/bookings/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

var bookingZone = time.FixedZone("+05:30", 5*3600+30*60)

// testPool connects to DATABASE_URL and applies migrations. Tests that need
// it are skipped when the variable is unset.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	if err := database.RunMigrations(url); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	pool, err := pgxpool.New(context.Background(), url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

// seedPair inserts a user and a speaker and removes them with their sessions afterwards.
func seedPair(t *testing.T, pool *pgxpool.Pool) (userID, speakerID int64) {
	t.Helper()
	ctx := context.Background()
	suffix := time.Now().UnixNano()

	const q = `INSERT INTO users (first_name, last_name, email, password_hash, role, is_verified)
		VALUES ($1, 'Test', $2, 'x', $3, true) RETURNING id`
	if err := pool.QueryRow(ctx, q, "Ada", fmt.Sprintf("ada-%d@example.com", suffix), string(domain.RoleUser)).Scan(&userID); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if err := pool.QueryRow(ctx, q, "Grace", fmt.Sprintf("grace-%d@example.com", suffix), string(domain.RoleSpeaker)).Scan(&speakerID); err != nil {
		t.Fatalf("seed speaker: %v", err)
	}

	t.Cleanup(func() {
		pool.Exec(ctx, `DELETE FROM sessions WHERE speaker_id = $1`, speakerID)
		pool.Exec(ctx, `DELETE FROM users WHERE id = ANY($1)`, []int64{userID, speakerID})
	})
	return userID, speakerID
}

func sessionAt(t *testing.T, userID, speakerID int64, clock, eventID string) *domain.Session {
	t.Helper()
	slot, err := domain.ParseSlot("2031-03-04", clock, bookingZone)
	if err != nil {
		t.Fatalf("slot %s: %v", clock, err)
	}
	return &domain.Session{
		UserID:          userID,
		SpeakerID:       speakerID,
		Date:            slot.Date,
		Time:            slot.Time,
		StartAt:         slot.Start,
		EndAt:           slot.End,
		CalendarEventID: eventID,
	}
}

func insertLocked(repo SessionRepository, s *domain.Session) error {
	return repo.WithSpeakerLock(context.Background(), s.SpeakerID, func(ctx context.Context, tx SessionWriter) error {
		_, err := tx.Insert(ctx, s)
		return err
	})
}

func TestSessionRepository_Overlap(t *testing.T) {
	pool := testPool(t)
	repo := NewSessionRepository(pool)
	userID, speakerID := seedPair(t, pool)

	if err := insertLocked(repo, sessionAt(t, userID, speakerID, "10:00", "evt-a")); err != nil {
		t.Fatalf("book 10:00: %v", err)
	}

	tests := []struct {
		clock string
		busy  bool
	}{
		{"09:00", false},
		{"09:30", true},
		{"10:00", true},
		{"10:30", true},
		{"11:00", false},
	}
	for _, tt := range tests {
		s := sessionAt(t, userID, speakerID, tt.clock, "")
		err := repo.WithSpeakerLock(context.Background(), speakerID, func(ctx context.Context, tx SessionWriter) error {
			busy, err := tx.HasOverlap(ctx, speakerID, s.StartAt, s.EndAt)
			if err != nil {
				return err
			}
			if busy != tt.busy {
				t.Errorf("%s: busy = %v, want %v", tt.clock, busy, tt.busy)
			}
			return errors.New("rollback")
		})
		if err == nil || err.Error() != "rollback" {
			t.Fatalf("%s: err = %v", tt.clock, err)
		}
	}
}

func TestSessionRepository_ExclusionConstraint(t *testing.T) {
	pool := testPool(t)
	repo := NewSessionRepository(pool)
	userID, speakerID := seedPair(t, pool)

	if err := insertLocked(repo, sessionAt(t, userID, speakerID, "10:00", "evt-a")); err != nil {
		t.Fatalf("book 10:00: %v", err)
	}

	// No overlap check: the store itself must refuse the row.
	err := insertLocked(repo, sessionAt(t, userID, speakerID, "10:30", "evt-b"))
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("10:30: err = %v, want ErrConflict", err)
	}
	err = insertLocked(repo, sessionAt(t, userID, speakerID, "10:00", "evt-c"))
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("duplicate 10:00: err = %v, want ErrConflict", err)
	}

	if err := insertLocked(repo, sessionAt(t, userID, speakerID, "11:00", "evt-d")); err != nil {
		t.Fatalf("back-to-back 11:00: %v", err)
	}

	rows, err := repo.ListBySpeakerAndDate(context.Background(), speakerID, "2031-03-04")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 2 || rows[0].Time != "10:00" || rows[1].Time != "11:00" {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestSessionRepository_ConcurrentLockedBookings(t *testing.T) {
	pool := testPool(t)
	repo := NewSessionRepository(pool)
	userID, speakerID := seedPair(t, pool)

	const workers = 2
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		committed int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := sessionAt(t, userID, speakerID, "13:00", fmt.Sprintf("evt-%d", i))
			err := repo.WithSpeakerLock(context.Background(), speakerID, func(ctx context.Context, tx SessionWriter) error {
				busy, err := tx.HasOverlap(ctx, speakerID, s.StartAt, s.EndAt)
				if err != nil {
					return err
				}
				if busy {
					return fmt.Errorf("%w: speaker not available at this time", domain.ErrConflict)
				}
				// Widen the window between check and insert.
				time.Sleep(50 * time.Millisecond)
				_, err = tx.Insert(ctx, s)
				return err
			})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				committed++
			case errors.Is(err, domain.ErrConflict):
				conflicts++
			default:
				t.Errorf("worker %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if committed != 1 || conflicts != workers-1 {
		t.Fatalf("committed = %d, conflicts = %d", committed, conflicts)
	}
	rows, err := repo.ListBySpeakerAndDate(context.Background(), speakerID, "2031-03-04")
	if err != nil || len(rows) != 1 {
		t.Fatalf("rows = %v, err = %v", rows, err)
	}
}

func TestSessionRepository_FindByCalendarEventID(t *testing.T) {
	pool := testPool(t)
	repo := NewSessionRepository(pool)
	userID, speakerID := seedPair(t, pool)

	eventID := fmt.Sprintf("evt-find-%d", time.Now().UnixNano())
	if err := insertLocked(repo, sessionAt(t, userID, speakerID, "14:00", eventID)); err != nil {
		t.Fatalf("book: %v", err)
	}

	got, err := repo.FindByCalendarEventID(context.Background(), eventID)
	if err != nil || got == nil || got.SpeakerID != speakerID || got.Time != "14:00" {
		t.Fatalf("found = %+v, err = %v", got, err)
	}
	missing, err := repo.FindByCalendarEventID(context.Background(), eventID+"-missing")
	if err != nil || missing != nil {
		t.Fatalf("missing = %+v, err = %v", missing, err)
	}
}

func TestSessionRepository_InsertUnknownSpeaker(t *testing.T) {
	pool := testPool(t)
	repo := NewSessionRepository(pool)
	userID, _ := seedPair(t, pool)

	err := insertLocked(repo, sessionAt(t, userID, -1, "15:00", ""))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
