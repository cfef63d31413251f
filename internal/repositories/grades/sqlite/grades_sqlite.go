package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/quipper/poc/lti/tool/pkg/repositories"
	repoIface "github.com/quipper/poc/lti/tool/pkg/repositories/grades"
)

type SQLiteRepo struct {
	db *sql.DB
}

// Ensure interface compliance
var _ repoIface.Repository = (*SQLiteRepo)(nil)

func NewSQLiteRepo(db *sql.DB) *SQLiteRepo {
	return &SQLiteRepo{db: db}
}

const selectColumns = `SELECT id, principal, content_ref, resource_link_id, resource_title, lineitem_url, lineitems_url, scopes, created_at, updated_at FROM graded_resource_links`

// Upsert is a single INSERT ... ON CONFLICT DO UPDATE, so repeated launches of
// the same link converge on one row holding the latest endpoint.
func (r *SQLiteRepo) Upsert(ctx context.Context, l *repoIface.GradedResourceLink) error {
	scopes := l.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	scopesJSON, err := json.Marshal(scopes)
	if err != nil {
		return fmt.Errorf("marshal scopes: %w", err)
	}
	now := time.Now().UTC()
	row := r.db.QueryRowContext(ctx, `
        INSERT INTO graded_resource_links
            (principal, content_ref, resource_link_id, resource_title, lineitem_url, lineitems_url, scopes, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (principal, content_ref, resource_link_id) DO UPDATE SET
            resource_title = excluded.resource_title,
            lineitem_url = excluded.lineitem_url,
            lineitems_url = excluded.lineitems_url,
            scopes = excluded.scopes,
            updated_at = excluded.updated_at
        RETURNING id
    `, l.Principal, l.ContentRef, l.ResourceLinkID, l.ResourceTitle, l.LineItemURL, l.LineItemsURL, string(scopesJSON), now, now)
	if err := row.Scan(&l.ID); err != nil {
		return fmt.Errorf("upsert graded resource: %w", err)
	}
	stored, err := r.Get(ctx, l.ID)
	if err != nil {
		return fmt.Errorf("reload graded resource %d: %w", l.ID, err)
	}
	l.CreatedAt, l.UpdatedAt = stored.CreatedAt, stored.UpdatedAt
	return nil
}

func (r *SQLiteRepo) Get(ctx context.Context, id int64) (*repoIface.GradedResourceLink, error) {
	l, err := scan(r.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrNotFound
		}
		return nil, err
	}
	return l, nil
}

func (r *SQLiteRepo) List(ctx context.Context, f repoIface.Filter) ([]*repoIface.GradedResourceLink, error) {
	var where []string
	var args []any
	if f.Principal != "" {
		where = append(where, "principal = ?")
		args = append(args, f.Principal)
	}
	if f.ContentRef != "" {
		where = append(where, "content_ref = ?")
		args = append(args, f.ContentRef)
	}
	q := selectColumns
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id ASC"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*repoIface.GradedResourceLink
	for rows.Next() {
		l, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (*repoIface.GradedResourceLink, error) {
	var l repoIface.GradedResourceLink
	var scopes string
	if err := s.Scan(&l.ID, &l.Principal, &l.ContentRef, &l.ResourceLinkID, &l.ResourceTitle,
		&l.LineItemURL, &l.LineItemsURL, &scopes, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(scopes), &l.Scopes); err != nil {
		return nil, fmt.Errorf("unmarshal scopes of graded resource %d: %w", l.ID, err)
	}
	return &l, nil
}
