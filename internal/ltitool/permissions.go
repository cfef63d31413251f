package ltitool

import (
	"context"

	"github.com/quipper/poc/lti/tool/pkg/common/logger"
	"github.com/quipper/poc/lti/tool/pkg/repositories/library"
)

// GrantStore creates a grant only where none exists.
type GrantStore interface {
	CreateGrantIfAbsent(ctx context.Context, libraryKey, principal string, level library.AccessLevel) (bool, error)
}

// PlatformAuthorizations tells whether a library accepts launches from a platform.
type PlatformAuthorizations interface {
	IsPlatformAuthorized(ctx context.Context, libraryKey, issuer, clientID string) (bool, error)
}

// PermissionBootstrapper gives a first-time federated identity admin access
// to the library it was launched into.
type PermissionBootstrapper struct {
	grants GrantStore
}

func NewPermissionBootstrapper(grants GrantStore) *PermissionBootstrapper {
	return &PermissionBootstrapper{grants: grants}
}

// EnsureAccess creates an admin grant when the principal has none. Existing
// grants, including ones lowered by hand, are left untouched; losing a
// concurrent race counts as success.
func (b *PermissionBootstrapper) EnsureAccess(ctx context.Context, principal string, lib LibraryKey) (bool, error) {
	created, err := b.grants.CreateGrantIfAbsent(ctx, lib.String(), principal, library.AccessAdmin)
	if err != nil {
		return false, internalError("bootstrap grant", err)
	}
	if created {
		logger.Info("LTI 1.3: granted %s on %s to %s", library.AccessAdmin, lib, principal)
	}
	return created, nil
}

// LaunchAuthorizer gates launches on the library having authorized the platform.
type LaunchAuthorizer struct {
	libraries PlatformAuthorizations
}

func NewLaunchAuthorizer(libraries PlatformAuthorizations) *LaunchAuthorizer {
	return &LaunchAuthorizer{libraries: libraries}
}

func (a *LaunchAuthorizer) Authorize(ctx context.Context, lib LibraryKey, issuer, clientID string) error {
	ok, err := a.libraries.IsPlatformAuthorized(ctx, lib.String(), issuer, clientID)
	if err != nil {
		return internalError("check library authorization", err)
	}
	if !ok {
		return newError(KindConfiguration, ErrLaunchNotAuthorized, "library %s, iss=%s client_id=%s", lib, issuer, clientID)
	}
	return nil
}
