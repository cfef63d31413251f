package identity

import (
	"context"
	"time"
)

// Account is the local user a federated profile maps to.
type Account struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// Profile maps (Issuer, ClientID, Subject) to exactly one Account. Profiles
// are never mutated after creation.
type Profile struct {
	ID        string    `json:"id"`
	Issuer    string    `json:"issuer"`
	ClientID  string    `json:"client_id"`
	Subject   string    `json:"subject"`
	AccountID string    `json:"account_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is an authenticated local session of an account.
type Session struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Repository defines storage of accounts, federated profiles and sessions.
type Repository interface {
	// GetOrCreateProfile returns the profile of the triple, creating it and
	// its account when absent. Concurrent first contacts converge on one profile.
	GetOrCreateProfile(ctx context.Context, issuer, clientID, subject string) (p *Profile, created bool, err error)
	FindProfile(ctx context.Context, issuer, clientID, subject string) (*Profile, error)
	GetAccount(ctx context.Context, id string) (*Account, error)

	CreateSession(ctx context.Context, accountID string, exp time.Time) (*Session, error)
	// GetSession returns repositories.ErrNotFound for unknown or expired sessions.
	GetSession(ctx context.Context, id string) (*Session, error)
	DeleteSession(ctx context.Context, id string) error
}
