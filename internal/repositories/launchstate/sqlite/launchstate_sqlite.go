package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/quipper/poc/lti/tool/pkg/common/logger"
	"github.com/quipper/poc/lti/tool/pkg/repositories"
	repoIface "github.com/quipper/poc/lti/tool/pkg/repositories/launchstate"
)

// SQLiteRepo stores launch states and used nonces in the tool database.
type SQLiteRepo struct {
	db  *sql.DB
	now func() time.Time
}

// Ensure interface compliance
var _ repoIface.Repository = (*SQLiteRepo)(nil)

func NewSQLiteRepo(db *sql.DB) *SQLiteRepo {
	return &SQLiteRepo{db: db, now: time.Now}
}

func (r *SQLiteRepo) Create(ctx context.Context, s *repoIface.LaunchState) error {
	now := r.now().Unix()
	// Cleanup expired (best-effort)
	if _, err := r.db.ExecContext(ctx, `DELETE FROM launch_states WHERE expires_at <= ?`, now); err != nil {
		logger.Warn("launch state cleanup failed: %v", err)
	}
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO launch_states (state, nonce, issuer, client_id, target_link_uri, expires_at)
        VALUES (?, ?, ?, ?, ?, ?)
    `, s.State, s.Nonce, s.Issuer, s.ClientID, s.TargetLinkURI, s.ExpiresAt.Unix())
	if err != nil {
		return fmt.Errorf("insert launch state: %w", err)
	}
	return nil
}

// Consume deletes the row and returns it in one statement, so two concurrent
// launches with the same state cannot both succeed.
func (r *SQLiteRepo) Consume(ctx context.Context, state string) (*repoIface.LaunchState, error) {
	row := r.db.QueryRowContext(ctx, `
        DELETE FROM launch_states WHERE state = ?
        RETURNING state, nonce, issuer, client_id, target_link_uri, expires_at
    `, state)
	var s repoIface.LaunchState
	var exp int64
	if err := row.Scan(&s.State, &s.Nonce, &s.Issuer, &s.ClientID, &s.TargetLinkURI, &exp); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("consume launch state: %w", err)
	}
	s.ExpiresAt = time.Unix(exp, 0).UTC()
	if s.Expired(r.now()) {
		return nil, repositories.ErrNotFound
	}
	return &s, nil
}

// TryUseNonce inserts the nonce, or takes over a row whose expiry has passed.
// Zero affected rows means the nonce is still live: a replay.
func (r *SQLiteRepo) TryUseNonce(ctx context.Context, issuer, nonce string, exp time.Time) (bool, error) {
	if nonce == "" {
		return false, errors.New("empty nonce")
	}
	now := r.now().Unix()
	res, err := r.db.ExecContext(ctx, `
        INSERT INTO used_nonces (issuer, nonce, expires_at) VALUES (?, ?, ?)
        ON CONFLICT (issuer, nonce) DO UPDATE SET expires_at = excluded.expires_at
        WHERE used_nonces.expires_at <= ?
    `, issuer, nonce, exp.Unix(), now)
	if err != nil {
		return false, fmt.Errorf("record nonce: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
