package ltitool

import (
	"context"
	"html/template"

	"github.com/quipper/poc/lti/tool/pkg/repositories/identity"
)

//go:generate mockgen -destination=mocks/mock_collaborators.go -package=mocks -source=collaborators.go

// Accounts authenticates federated identities and opens local sessions.
type Accounts interface {
	// Authenticate returns the account of the federated profile, or nil when
	// the triple has none.
	Authenticate(ctx context.Context, issuer, audience, subject string) (*identity.Account, error)
	Login(ctx context.Context, account *identity.Account) (*identity.Session, error)
}

// Fragment is renderable content for one component.
type Fragment struct {
	Title string
	HTML  template.HTML
}

// ContentLoader renders a library component for a principal.
type ContentLoader interface {
	LoadContent(ctx context.Context, key UsageKey, principal string) (*Fragment, error)
}
