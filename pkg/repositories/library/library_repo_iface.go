package library

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// AccessLevel is an ordered library permission: none < read < author < admin.
type AccessLevel int

const (
	AccessNone AccessLevel = iota
	AccessRead
	AccessAuthor
	AccessAdmin
)

func (l AccessLevel) String() string {
	switch l {
	case AccessRead:
		return "read"
	case AccessAuthor:
		return "author"
	case AccessAdmin:
		return "admin"
	default:
		return "none"
	}
}

// ParseAccessLevel is the inverse of AccessLevel.String.
func ParseAccessLevel(s string) (AccessLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return AccessNone, nil
	case "read":
		return AccessRead, nil
	case "author":
		return AccessAuthor, nil
	case "admin":
		return AccessAdmin, nil
	}
	return AccessNone, fmt.Errorf("unknown access level %q", s)
}

// Library is a content library addressed by a key of the form lib:<org>:<slug>.
type Library struct {
	Key       string    `json:"key"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// Grant is the access level of one principal on one library.
type Grant struct {
	LibraryKey  string      `json:"library_key"`
	Principal   string      `json:"principal"`
	AccessLevel AccessLevel `json:"access_level"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Repository defines storage for libraries, their platform authorizations and grants.
type Repository interface {
	CreateLibrary(ctx context.Context, l *Library) error
	GetLibrary(ctx context.Context, key string) (*Library, error)
	ListLibraries(ctx context.Context) ([]*Library, error)

	// AuthorizePlatform allows launches from a registration into the library. Idempotent.
	AuthorizePlatform(ctx context.Context, libraryKey string, registrationID int64) error
	// IsPlatformAuthorized reports whether the registration identified by
	// (issuer, clientID) may launch into the library.
	IsPlatformAuthorized(ctx context.Context, libraryKey, issuer, clientID string) (bool, error)

	// CreateGrantIfAbsent inserts the grant only when the principal has none
	// on the library; it never modifies an existing grant.
	CreateGrantIfAbsent(ctx context.Context, libraryKey, principal string, level AccessLevel) (created bool, err error)
	// SetGrant creates or overwrites a grant. Used by operators only.
	SetGrant(ctx context.Context, libraryKey, principal string, level AccessLevel) error
	// GetGrant returns repositories.ErrNotFound when the principal has no grant.
	GetGrant(ctx context.Context, libraryKey, principal string) (*Grant, error)
}
