// README: ai_usage persistence in Postgres.
package aiusage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const monthLayout = "2006-01"

// Store keeps one row per rider: tokens left and the UTC month they belong to.
type Store struct {
	db  *pgxpool.Pool
	now func() time.Time
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db, now: time.Now}
}

// month is the quota period, always computed in UTC so riders in any zone
// roll over at the same instant.
func (s *Store) month() string {
	return s.now().UTC().Format(monthLayout)
}

// UseToken takes one token from uid in a single statement. A missing row is
// created with the allowance already charged; a row from an earlier month
// starts over. Zero affected rows means this month's allowance is spent.
func (s *Store) UseToken(ctx context.Context, uid string) error {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO ai_usage AS u (uid, tokens_remaining, last_reset_month)
		VALUES ($1, $2 - 1, $3)
		ON CONFLICT (uid) DO UPDATE SET
			tokens_remaining = CASE
				WHEN u.last_reset_month < EXCLUDED.last_reset_month THEN $2 - 1
				ELSE u.tokens_remaining - 1
			END,
			last_reset_month = EXCLUDED.last_reset_month
		WHERE u.last_reset_month < EXCLUDED.last_reset_month OR u.tokens_remaining > 0
	`, uid, DefaultTokens, s.month())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientTokens
	}
	return nil
}

// Remaining reports tokens left this month without touching the row.
func (s *Store) Remaining(ctx context.Context, uid string) (int, error) {
	var (
		left  int
		month string
	)
	err := s.db.QueryRow(ctx,
		`SELECT tokens_remaining, last_reset_month FROM ai_usage WHERE uid = $1`, uid,
	).Scan(&left, &month)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return DefaultTokens, nil
	case err != nil:
		return 0, err
	case month < s.month():
		return DefaultTokens, nil
	}
	return left, nil
}
