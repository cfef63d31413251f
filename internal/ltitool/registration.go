package ltitool

import (
	"context"
	"errors"

	"github.com/quipper/poc/lti/tool/pkg/repositories"
	"github.com/quipper/poc/lti/tool/pkg/repositories/platform"
)

// resolveRegistration finds the registration of (issuer, clientID). When the
// platform omits client_id and the issuer has exactly one registration, that
// registration is used.
func resolveRegistration(ctx context.Context, platforms platform.Repository, issuer, clientID string) (*platform.Registration, error) {
	if clientID != "" {
		reg, err := platforms.FindByIssuerAndClientID(ctx, issuer, clientID)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return nil, newError(KindConfiguration, ErrUnknownPlatform, "issuer %s client %s", issuer, clientID)
			}
			return nil, internalError("find platform", err)
		}
		return reg, nil
	}
	regs, err := platforms.ListByIssuer(ctx, issuer)
	if err != nil {
		return nil, internalError("list platforms", err)
	}
	switch len(regs) {
	case 0:
		return nil, newError(KindConfiguration, ErrUnknownPlatform, "issuer %s", issuer)
	case 1:
		return regs[0], nil
	default:
		return nil, newError(KindConfiguration, ErrUnknownPlatform, "issuer %s has %d registrations and sent no client_id", issuer, len(regs))
	}
}
