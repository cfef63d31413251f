package ltitool

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/quipper/poc/lti/tool/pkg/repositories"
	"github.com/quipper/poc/lti/tool/pkg/repositories/launchstate"
	"github.com/quipper/poc/lti/tool/pkg/repositories/platform"
)

// LaunchValidator completes the second leg of the handshake. The only
// accepted path is a stored state, a verified token, a matching unused nonce
// and a resource link message for the content bound at login.
type LaunchValidator struct {
	platforms platform.Repository
	states    launchstate.Repository
	verifier  Verifier
	now       func() time.Time
}

func NewLaunchValidator(platforms platform.Repository, states launchstate.Repository, verifier Verifier) *LaunchValidator {
	return &LaunchValidator{platforms: platforms, states: states, verifier: verifier, now: time.Now}
}

// Validate consumes state and verifies idToken against it. Every failure is
// terminal: the user has to restart the login from the platform.
func (v *LaunchValidator) Validate(ctx context.Context, idToken, state string) (*Claims, error) {
	if state == "" {
		return nil, protocolError(ErrStateNotFound, "no state presented")
	}
	ls, err := v.states.Consume(ctx, state)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, protocolError(ErrStateNotFound, "state %s unknown, used or expired", state)
		}
		return nil, internalError("consume launch state", err)
	}
	if idToken == "" {
		return nil, protocolError(ErrInvalidClaims, "no id_token presented")
	}

	tok, err := v.verifier.Verify(ctx, idToken, ls.Issuer, ls.ClientID)
	if err != nil {
		return nil, err
	}
	tc, err := decodeTokenClaims(tok)
	if err != nil {
		return nil, protocolError(ErrInvalidClaims, "%v", err)
	}

	if tc.Nonce == "" || tc.Nonce != ls.Nonce {
		return nil, protocolError(ErrNonceMismatch, "state %s", state)
	}
	fresh, err := v.states.TryUseNonce(ctx, ls.Issuer, tc.Nonce, tok.Expiration())
	if err != nil {
		return nil, internalError("record nonce", err)
	}
	if !fresh {
		return nil, protocolError(ErrNonceReplayed, "nonce of state %s", state)
	}

	if aud := tok.Audience(); len(aud) > 1 && tc.AuthorizedFor != ls.ClientID {
		return nil, protocolError(ErrInvalidClaims, "azp %q does not name client %s", tc.AuthorizedFor, ls.ClientID)
	}
	if tc.Version != LTIVersion {
		return nil, protocolError(ErrInvalidClaims, "lti version %q", tc.Version)
	}
	if tc.MessageType != MessageTypeResourceLink {
		return nil, protocolError(ErrInvalidClaims, "message type %q not supported", tc.MessageType)
	}
	if tc.Subject == "" {
		return nil, protocolError(ErrInvalidClaims, "anonymous launches are not supported")
	}
	if tc.ResourceLink == nil || tc.ResourceLink.ID == "" {
		return nil, protocolError(ErrInvalidClaims, "resource_link.id missing")
	}
	if tc.DeploymentID == "" {
		return nil, protocolError(ErrInvalidClaims, "deployment_id missing")
	}
	reg, err := v.platforms.FindByIssuerAndClientID(ctx, ls.Issuer, ls.ClientID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, newError(KindConfiguration, ErrUnknownPlatform, "registration of %s / %s removed during launch", ls.Issuer, ls.ClientID)
		}
		return nil, internalError("find platform", err)
	}
	if !reg.HasDeployment(tc.DeploymentID) {
		return nil, newError(KindConfiguration, ErrUnknownDeployment, "deployment %s of platform %d", tc.DeploymentID, reg.ID)
	}

	ref, err := ContentRefFromTarget(ls.TargetLinkURI)
	if err != nil {
		return nil, protocolError(ErrTargetMismatch, "stored target: %v", err)
	}
	if tc.TargetLinkURI != "" {
		claimed, err := ContentRefFromTarget(tc.TargetLinkURI)
		if err != nil || claimed != ref {
			return nil, protocolError(ErrTargetMismatch, "token targets %s, login bound %s", tc.TargetLinkURI, ref)
		}
	}

	return &Claims{
		Issuer:        ls.Issuer,
		Audience:      ls.ClientID,
		Subject:       tc.Subject,
		DeploymentID:  tc.DeploymentID,
		MessageType:   tc.MessageType,
		Version:       tc.Version,
		Roles:         slices.Clone(tc.Roles),
		Name:          tc.Name,
		GivenName:     tc.GivenName,
		FamilyName:    tc.FamilyName,
		Email:         tc.Email,
		Context:       tc.Context,
		ResourceLink:  tc.ResourceLink,
		AGS:           tc.AGS,
		TargetLinkURI: ls.TargetLinkURI,
		ContentRef:    ref,
		ExpiresAt:     tok.Expiration(),
	}, nil
}
