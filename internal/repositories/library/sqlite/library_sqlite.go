package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/quipper/poc/lti/tool/internal/repositories/sqlitedb"
	"github.com/quipper/poc/lti/tool/pkg/repositories"
	repoIface "github.com/quipper/poc/lti/tool/pkg/repositories/library"
)

type SQLiteRepo struct {
	db *sql.DB
}

// Ensure interface compliance
var _ repoIface.Repository = (*SQLiteRepo)(nil)

func NewSQLiteRepo(db *sql.DB) *SQLiteRepo {
	return &SQLiteRepo{db: db}
}

func (r *SQLiteRepo) CreateLibrary(ctx context.Context, l *repoIface.Library) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `INSERT INTO libraries (key, title, created_at) VALUES (?, ?, ?)`, l.Key, l.Title, now)
	if err != nil {
		if sqlitedb.IsUniqueViolation(err) {
			return fmt.Errorf("library %s: %w", l.Key, repositories.ErrAlreadyExists)
		}
		return fmt.Errorf("insert library: %w", err)
	}
	l.CreatedAt = now
	return nil
}

func (r *SQLiteRepo) GetLibrary(ctx context.Context, key string) (*repoIface.Library, error) {
	row := r.db.QueryRowContext(ctx, `SELECT key, title, created_at FROM libraries WHERE key = ?`, key)
	var l repoIface.Library
	if err := row.Scan(&l.Key, &l.Title, &l.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrNotFound
		}
		return nil, err
	}
	return &l, nil
}

func (r *SQLiteRepo) ListLibraries(ctx context.Context) ([]*repoIface.Library, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, title, created_at FROM libraries ORDER BY key ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*repoIface.Library
	for rows.Next() {
		var l repoIface.Library
		if err := rows.Scan(&l.Key, &l.Title, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SQLiteRepo) AuthorizePlatform(ctx context.Context, libraryKey string, registrationID int64) error {
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO library_platforms (library_key, registration_id) VALUES (?, ?)
        ON CONFLICT (library_key, registration_id) DO NOTHING
    `, libraryKey, registrationID)
	if err != nil {
		if sqlitedb.IsForeignKeyViolation(err) {
			return fmt.Errorf("library %s or platform %d: %w", libraryKey, registrationID, repositories.ErrNotFound)
		}
		return fmt.Errorf("authorize platform: %w", err)
	}
	return nil
}

func (r *SQLiteRepo) IsPlatformAuthorized(ctx context.Context, libraryKey, issuer, clientID string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
        SELECT COUNT(*) FROM library_platforms lp
        JOIN platform_registrations p ON p.id = lp.registration_id
        WHERE lp.library_key = ? AND p.issuer = ? AND p.client_id = ?
    `, libraryKey, issuer, clientID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check platform authorization: %w", err)
	}
	return n > 0, nil
}

// CreateGrantIfAbsent never touches an existing row: ON CONFLICT DO NOTHING
// leaves RowsAffected at zero when the principal already holds a grant.
func (r *SQLiteRepo) CreateGrantIfAbsent(ctx context.Context, libraryKey, principal string, level repoIface.AccessLevel) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
        INSERT INTO access_grants (library_key, principal, access_level, created_at) VALUES (?, ?, ?, ?)
        ON CONFLICT (library_key, principal) DO NOTHING
    `, libraryKey, principal, int(level), time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("insert grant: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *SQLiteRepo) SetGrant(ctx context.Context, libraryKey, principal string, level repoIface.AccessLevel) error {
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO access_grants (library_key, principal, access_level, created_at) VALUES (?, ?, ?, ?)
        ON CONFLICT (library_key, principal) DO UPDATE SET access_level = excluded.access_level
    `, libraryKey, principal, int(level), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set grant: %w", err)
	}
	return nil
}

func (r *SQLiteRepo) GetGrant(ctx context.Context, libraryKey, principal string) (*repoIface.Grant, error) {
	row := r.db.QueryRowContext(ctx, `
        SELECT library_key, principal, access_level, created_at FROM access_grants
        WHERE library_key = ? AND principal = ?`, libraryKey, principal)
	var g repoIface.Grant
	var level int
	if err := row.Scan(&g.LibraryKey, &g.Principal, &level, &g.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrNotFound
		}
		return nil, err
	}
	g.AccessLevel = repoIface.AccessLevel(level)
	return &g, nil
}
