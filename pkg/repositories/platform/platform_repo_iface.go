package platform

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

// Registration is a learning platform trusted to launch into the tool.
// (Issuer, ClientID) is unique. Exactly one of KeySetURL and KeySet is set.
type Registration struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Issuer        string    `json:"issuer"`
	ClientID      string    `json:"client_id"`
	AuthLoginURL  string    `json:"auth_login_url"`
	AuthTokenURL  string    `json:"auth_token_url,omitempty"`
	KeySetURL     string    `json:"key_set_url,omitempty"`
	KeySet        string    `json:"key_set,omitempty"` // embedded JWKS document
	DeploymentIDs []string  `json:"deployment_ids,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// HasDeployment reports whether id is acceptable for this registration. An
// empty deployment list accepts any deployment.
func (r *Registration) HasDeployment(id string) bool {
	if len(r.DeploymentIDs) == 0 {
		return true
	}
	for _, d := range r.DeploymentIDs {
		if d == id {
			return true
		}
	}
	return false
}

// Validate checks required fields and that exactly one key source is set.
func (r *Registration) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" || r.Issuer == "" || r.ClientID == "" || r.AuthLoginURL == "" {
		return errors.New("name, issuer, client_id and auth_login_url are required")
	}
	if u, err := url.Parse(r.AuthLoginURL); err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("auth_login_url must be an absolute URL")
	}
	switch {
	case r.KeySetURL == "" && r.KeySet == "":
		return errors.New("one of key_set_url or key_set is required")
	case r.KeySetURL != "" && r.KeySet != "":
		return errors.New("key_set_url and key_set are mutually exclusive")
	case r.KeySet != "":
		if _, err := jwk.Parse([]byte(r.KeySet)); err != nil {
			return errors.New("key_set is not a valid JWKS document")
		}
	}
	return nil
}

// Repository defines storage operations for platform registrations.
type Repository interface {
	// Health is a simple check to verify repository works.
	Health(ctx context.Context) error
	// Create inserts a registration and returns its ID. A duplicate
	// (issuer, client_id) pair yields repositories.ErrAlreadyExists.
	Create(ctx context.Context, r *Registration) (int64, error)
	List(ctx context.Context) ([]*Registration, error)
	GetByID(ctx context.Context, id int64) (*Registration, error)
	// FindByIssuerAndClientID returns repositories.ErrNotFound for unknown pairs.
	FindByIssuerAndClientID(ctx context.Context, issuer, clientID string) (*Registration, error)
	ListByIssuer(ctx context.Context, issuer string) ([]*Registration, error)
	DeleteByID(ctx context.Context, id int64) error
}
