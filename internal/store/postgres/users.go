package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"convograph/internal/graphmodel"
	"convograph/internal/store"
)

func (s *Store) GetOrCreateUser(ctx context.Context, userID string) (graphmodel.User, error) {
	if userID == "" {
		return graphmodel.User{}, store.ErrInvalidInput
	}
	row := s.pool.QueryRow(ctx, `
WITH ins AS (
  INSERT INTO users (id) VALUES ($1)
  ON CONFLICT (id) DO NOTHING
  RETURNING id, consent_global, created_at
)
SELECT id, consent_global, created_at FROM ins
UNION ALL
SELECT id, consent_global, created_at FROM users WHERE id = $1
LIMIT 1`, userID)
	var u graphmodel.User
	if err := row.Scan(&u.ID, &u.ConsentGlobal, &u.CreatedAt); err != nil {
		return graphmodel.User{}, err
	}
	return u, nil
}

func (s *Store) SetConsentGlobal(ctx context.Context, userID string, consent bool) error {
	cmd, err := s.pool.Exec(ctx, `UPDATE users SET consent_global = $2 WHERE id = $1`, userID, consent)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		_, err := s.pool.Exec(ctx, `INSERT INTO users (id, consent_global, created_at) VALUES ($1, $2, $3)`,
			userID, consent, time.Now().UTC())
		return err
	}
	return nil
}

func errNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
