package ltitool

import (
	"context"

	"github.com/quipper/poc/lti/tool/pkg/common/logger"
	"github.com/quipper/poc/lti/tool/pkg/repositories/identity"
)

// ProfileStore is the insert-or-fetch store of federated profiles.
type ProfileStore interface {
	GetOrCreateProfile(ctx context.Context, issuer, clientID, subject string) (*identity.Profile, bool, error)
}

// FederatedIdentity is the local identity a launch resolved to.
type FederatedIdentity struct {
	Profile        *identity.Profile
	Account        *identity.Account
	Session        *identity.Session
	ProfileCreated bool
}

// Principal is the account the launch acts as.
func (f *FederatedIdentity) Principal() string {
	return f.Account.ID
}

// IdentityResolver maps (issuer, audience, subject) to a local account and logs it in.
type IdentityResolver struct {
	profiles ProfileStore
	accounts Accounts
}

func NewIdentityResolver(profiles ProfileStore, accounts Accounts) *IdentityResolver {
	return &IdentityResolver{profiles: profiles, accounts: accounts}
}

func (r *IdentityResolver) Resolve(ctx context.Context, c *Claims) (*FederatedIdentity, error) {
	profile, created, err := r.profiles.GetOrCreateProfile(ctx, c.Issuer, c.Audience, c.Subject)
	if err != nil {
		return nil, newError(KindIdentity, ErrIdentityProvisioningFailed, "profile for %s/%s/%s: %v", c.Issuer, c.Audience, c.Subject, err)
	}
	if created {
		logger.Info("LTI 1.3: created federated profile %s for iss=%s aud=%s sub=%s", profile.ID, c.Issuer, c.Audience, c.Subject)
	}

	account, err := r.accounts.Authenticate(ctx, c.Issuer, c.Audience, c.Subject)
	if err != nil {
		return nil, newError(KindIdentity, ErrIdentityProvisioningFailed, "authenticate: %v", err)
	}
	if account == nil {
		return nil, newError(KindIdentity, ErrIdentityProvisioningFailed, "no account for profile %s", profile.ID)
	}
	session, err := r.accounts.Login(ctx, account)
	if err != nil {
		return nil, newError(KindIdentity, ErrIdentityProvisioningFailed, "login account %s: %v", account.ID, err)
	}
	return &FederatedIdentity{Profile: profile, Account: account, Session: session, ProfileCreated: created}, nil
}
