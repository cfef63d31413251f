package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quipper/poc/lti/tool/internal/repositories/sqlitedb"
	"github.com/quipper/poc/lti/tool/pkg/repositories"
	repoIface "github.com/quipper/poc/lti/tool/pkg/repositories/identity"
)

type SQLiteRepo struct {
	db  *sql.DB
	now func() time.Time
}

// Ensure interface compliance
var _ repoIface.Repository = (*SQLiteRepo)(nil)

func NewSQLiteRepo(db *sql.DB) *SQLiteRepo {
	return &SQLiteRepo{db: db, now: time.Now}
}

// GetOrCreateProfile inserts an account and a profile in one transaction. If
// another launch created the profile first, the insert is a no-op, the
// transaction is rolled back and the existing profile is returned instead.
func (r *SQLiteRepo) GetOrCreateProfile(ctx context.Context, issuer, clientID, subject string) (*repoIface.Profile, bool, error) {
	if p, err := r.FindProfile(ctx, issuer, clientID, subject); err == nil {
		return p, false, nil
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return nil, false, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer sqlitedb.Rollback(tx)

	now := r.now().UTC()
	accountID := uuid.NewString()
	if _, err := tx.ExecContext(ctx, `INSERT INTO accounts (id, username, created_at) VALUES (?, ?, ?)`,
		accountID, "lti-"+accountID, now); err != nil {
		return nil, false, fmt.Errorf("insert account: %w", err)
	}
	p := &repoIface.Profile{
		ID:        uuid.NewString(),
		Issuer:    issuer,
		ClientID:  clientID,
		Subject:   subject,
		AccountID: accountID,
		CreatedAt: now,
	}
	res, err := tx.ExecContext(ctx, `
        INSERT INTO federated_profiles (id, issuer, client_id, subject, account_id, created_at)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT (issuer, client_id, subject) DO NOTHING
    `, p.ID, p.Issuer, p.ClientID, p.Subject, p.AccountID, p.CreatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("insert profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		sqlitedb.Rollback(tx)
		existing, err := r.FindProfile(ctx, issuer, clientID, subject)
		return existing, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit profile: %w", err)
	}
	return p, true, nil
}

func (r *SQLiteRepo) FindProfile(ctx context.Context, issuer, clientID, subject string) (*repoIface.Profile, error) {
	row := r.db.QueryRowContext(ctx, `
        SELECT id, issuer, client_id, subject, account_id, created_at
        FROM federated_profiles WHERE issuer = ? AND client_id = ? AND subject = ?`, issuer, clientID, subject)
	var p repoIface.Profile
	if err := row.Scan(&p.ID, &p.Issuer, &p.ClientID, &p.Subject, &p.AccountID, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *SQLiteRepo) GetAccount(ctx context.Context, id string) (*repoIface.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, username, created_at FROM accounts WHERE id = ?`, id)
	var a repoIface.Account
	if err := row.Scan(&a.ID, &a.Username, &a.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *SQLiteRepo) CreateSession(ctx context.Context, accountID string, exp time.Time) (*repoIface.Session, error) {
	now := r.now().UTC()
	// Cleanup expired (best-effort)
	_, _ = r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now.Unix())

	s := &repoIface.Session{ID: uuid.NewString(), AccountID: accountID, ExpiresAt: exp.UTC(), CreatedAt: now}
	_, err := r.db.ExecContext(ctx, `INSERT INTO sessions (id, account_id, expires_at, created_at) VALUES (?, ?, ?, ?)`,
		s.ID, s.AccountID, s.ExpiresAt.Unix(), s.CreatedAt)
	if err != nil {
		if sqlitedb.IsForeignKeyViolation(err) {
			return nil, fmt.Errorf("account %s: %w", accountID, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return s, nil
}

func (r *SQLiteRepo) GetSession(ctx context.Context, id string) (*repoIface.Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, account_id, expires_at, created_at FROM sessions WHERE id = ? AND expires_at > ?`,
		id, r.now().Unix())
	var s repoIface.Session
	var exp int64
	if err := row.Scan(&s.ID, &s.AccountID, &exp, &s.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrNotFound
		}
		return nil, err
	}
	s.ExpiresAt = time.Unix(exp, 0).UTC()
	return &s, nil
}

func (r *SQLiteRepo) DeleteSession(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	return err
}
