// README: Postgres quota store tests (month rollover, UTC periods, concurrent charging).
package aiusage

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

func TestMonthIsUTC(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	s := &Store{now: func() time.Time {
		// 03:00 on 1 Feb in Kochi is still 31 Jan in UTC.
		return time.Date(2025, 2, 1, 3, 0, 0, 0, ist)
	}}
	if got := s.month(); got != "2025-01" {
		t.Fatalf("month() = %q, want 2025-01", got)
	}
}

func TestStoreFirstUseCreatesRow(t *testing.T) {
	store, db, uid := openTestStore(t)
	ctx := context.Background()

	if n, err := store.Remaining(ctx, uid); err != nil || n != DefaultTokens {
		t.Fatalf("Remaining before first use = %d, %v; want %d", n, err, DefaultTokens)
	}
	if err := store.UseToken(ctx, uid); err != nil {
		t.Fatalf("UseToken: %v", err)
	}

	var (
		left  int
		month string
	)
	if err := db.QueryRow(ctx, "SELECT tokens_remaining, last_reset_month FROM ai_usage WHERE uid = $1", uid).Scan(&left, &month); err != nil {
		t.Fatalf("query: %v", err)
	}
	if left != DefaultTokens-1 || month != store.month() {
		t.Errorf("row = (%d, %s), want (%d, %s)", left, month, DefaultTokens-1, store.month())
	}
}

func TestStoreMonthRollover(t *testing.T) {
	store, db, uid := openTestStore(t)
	ctx := context.Background()

	clock := time.Date(2025, 1, 31, 23, 30, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }
	if _, err := db.Exec(ctx, "INSERT INTO ai_usage VALUES ($1, 0, '2025-01')", uid); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := store.UseToken(ctx, uid); !errors.Is(err, ErrInsufficientTokens) {
		t.Fatalf("UseToken in spent month: err = %v, want ErrInsufficientTokens", err)
	}
	if n, _ := store.Remaining(ctx, uid); n != 0 {
		t.Fatalf("Remaining in spent month = %d, want 0", n)
	}

	clock = time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	// Remaining reports the fresh allowance before any write happens.
	if n, _ := store.Remaining(ctx, uid); n != DefaultTokens {
		t.Fatalf("Remaining after rollover = %d, want %d", n, DefaultTokens)
	}
	if err := store.UseToken(ctx, uid); err != nil {
		t.Fatalf("UseToken after rollover: %v", err)
	}
	if n, _ := store.Remaining(ctx, uid); n != DefaultTokens-1 {
		t.Errorf("Remaining after first February use = %d, want %d", n, DefaultTokens-1)
	}

	var month string
	if err := db.QueryRow(ctx, "SELECT last_reset_month FROM ai_usage WHERE uid = $1", uid).Scan(&month); err != nil {
		t.Fatalf("query: %v", err)
	}
	if month != "2025-02" {
		t.Errorf("last_reset_month = %s, want 2025-02", month)
	}
}

func TestStoreConcurrentUseNeverOverdraws(t *testing.T) {
	store, db, uid := openTestStore(t)
	ctx := context.Background()

	if _, err := db.Exec(ctx, "INSERT INTO ai_usage VALUES ($1, 5, $2)", uid, store.month()); err != nil {
		t.Fatalf("seed: %v", err)
	}

	var ok, denied atomic.Int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch err := store.UseToken(ctx, uid); {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrInsufficientTokens):
				denied.Add(1)
			default:
				t.Errorf("UseToken: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok.Load() != 5 || denied.Load() != 15 {
		t.Errorf("charged %d, denied %d; want 5 and 15", ok.Load(), denied.Load())
	}
	if n, _ := store.Remaining(ctx, uid); n != 0 {
		t.Errorf("Remaining = %d, want 0", n)
	}
}

func TestParseCommandChargesPostgresQuota(t *testing.T) {
	store, db, uid := openTestStore(t)
	ctx := context.Background()

	if _, err := db.Exec(ctx, "INSERT INTO ai_usage VALUES ($1, 1, $2)", uid, store.month()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	p := &stubParser{}
	svc := NewService(store, p)

	if _, err := svc.ParseCommand(ctx, uid, "Kochi to Alappuzha tomorrow", nil); err != nil {
		t.Fatalf("first ParseCommand: %v", err)
	}
	if _, err := svc.ParseCommand(ctx, uid, "and back", nil); !errors.Is(err, ErrInsufficientTokens) {
		t.Fatalf("second ParseCommand: err = %v, want ErrInsufficientTokens", err)
	}
	if p.calls != 1 {
		t.Errorf("parser calls = %d, want 1", p.calls)
	}
	if n, _ := svc.Remaining(ctx, uid); n != 0 {
		t.Errorf("Remaining = %d, want 0", n)
	}
}

// openTestStore connects to KR_TEST_DSN, applies the schema and returns a
// uid private to the calling test. It skips when the DSN is unset.
func openTestStore(t *testing.T) (*Store, *pgxpool.Pool, string) {
	t.Helper()

	dsn := os.Getenv("KR_TEST_DSN")
	if dsn == "" {
		t.Skip("KR_TEST_DSN not set; skipping DB-backed tests")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(db.Close)

	schema, err := os.ReadFile("../../../migrations/0001_ai_usage.sql")
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	if _, err := db.Exec(ctx, string(schema)); err != nil {
		t.Fatalf("apply migration: %v", err)
	}

	uid := "test:" + t.Name()
	if _, err := db.Exec(ctx, "DELETE FROM ai_usage WHERE uid = $1", uid); err != nil {
		t.Fatalf("clean: %v", err)
	}
	t.Cleanup(func() {
		_, _ = db.Exec(context.Background(), "DELETE FROM ai_usage WHERE uid = $1", uid)
	})
	return NewStore(db), db, uid
}
