package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/quipper/poc/lti/tool/internal/repositories/sqlitedb"
	"github.com/quipper/poc/lti/tool/pkg/repositories"
	repoIface "github.com/quipper/poc/lti/tool/pkg/repositories/platform"
)

type SQLiteRepo struct {
	db *sql.DB
}

// Ensure interface compliance
var _ repoIface.Repository = (*SQLiteRepo)(nil)

func NewSQLiteRepo(db *sql.DB) *SQLiteRepo {
	return &SQLiteRepo{db: db}
}

const selectColumns = `SELECT id, name, issuer, client_id, auth_login_url, auth_token_url, key_set_url, key_set, deployment_ids, created_at FROM platform_registrations`

func (r *SQLiteRepo) Health(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Create inserts a new registration and returns its ID
func (r *SQLiteRepo) Create(ctx context.Context, p *repoIface.Registration) (int64, error) {
	deployments, err := json.Marshal(nonNil(p.DeploymentIDs))
	if err != nil {
		return 0, fmt.Errorf("marshal deployment ids: %w", err)
	}
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
        INSERT INTO platform_registrations (name, issuer, client_id, auth_login_url, auth_token_url, key_set_url, key_set, deployment_ids, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
    `, p.Name, p.Issuer, p.ClientID, p.AuthLoginURL, p.AuthTokenURL, p.KeySetURL, p.KeySet, string(deployments), now)
	if err != nil {
		if sqlitedb.IsUniqueViolation(err) {
			return 0, fmt.Errorf("platform %s/%s: %w", p.Issuer, p.ClientID, repositories.ErrAlreadyExists)
		}
		return 0, fmt.Errorf("insert platform: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	p.ID = id
	p.CreatedAt = now
	return id, nil
}

func (r *SQLiteRepo) List(ctx context.Context) ([]*repoIface.Registration, error) {
	return r.query(ctx, selectColumns+` ORDER BY id ASC`)
}

func (r *SQLiteRepo) ListByIssuer(ctx context.Context, issuer string) ([]*repoIface.Registration, error) {
	return r.query(ctx, selectColumns+` WHERE issuer = ? ORDER BY id ASC`, issuer)
}

func (r *SQLiteRepo) GetByID(ctx context.Context, id int64) (*repoIface.Registration, error) {
	return r.get(ctx, selectColumns+` WHERE id = ?`, id)
}

func (r *SQLiteRepo) FindByIssuerAndClientID(ctx context.Context, issuer, clientID string) (*repoIface.Registration, error) {
	return r.get(ctx, selectColumns+` WHERE issuer = ? AND client_id = ?`, issuer, clientID)
}

func (r *SQLiteRepo) DeleteByID(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM platform_registrations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete platform %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepo) query(ctx context.Context, q string, args ...any) ([]*repoIface.Registration, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*repoIface.Registration
	for rows.Next() {
		p, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SQLiteRepo) get(ctx context.Context, q string, args ...any) (*repoIface.Registration, error) {
	p, err := scan(r.db.QueryRowContext(ctx, q, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (*repoIface.Registration, error) {
	var p repoIface.Registration
	var deployments string
	if err := s.Scan(&p.ID, &p.Name, &p.Issuer, &p.ClientID, &p.AuthLoginURL, &p.AuthTokenURL, &p.KeySetURL, &p.KeySet, &deployments, &p.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(deployments), &p.DeploymentIDs); err != nil {
		return nil, fmt.Errorf("unmarshal deployment ids of platform %d: %w", p.ID, err)
	}
	if len(p.DeploymentIDs) == 0 {
		p.DeploymentIDs = nil
	}
	return &p, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
