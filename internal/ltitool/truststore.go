package ltitool

import (
	"context"
	"errors"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/quipper/poc/lti/tool/pkg/common/jwkscache"
	"github.com/quipper/poc/lti/tool/pkg/repositories"
	"github.com/quipper/poc/lti/tool/pkg/repositories/platform"
)

//go:generate mockgen -destination=mocks/mock_truststore.go -package=mocks -source=truststore.go

// Verifier checks a platform-signed token against the registration of
// (issuer, audience).
type Verifier interface {
	Verify(ctx context.Context, token, issuer, audience string) (jwt.Token, error)
}

// TrustStore holds the tool's own key pair and resolves platform keys.
type TrustStore struct {
	platforms platform.Repository
	publicSet jwk.Set
	keySets   jwkscache.Cache
	skew      time.Duration
	now       func() time.Time
}

var _ Verifier = (*TrustStore)(nil)

// NewTrustStore wires the trust store. publicSet is the tool's public JWKS.
func NewTrustStore(platforms platform.Repository, publicSet jwk.Set, keySets jwkscache.Cache, skew time.Duration) *TrustStore {
	return &TrustStore{platforms: platforms, publicSet: publicSet, keySets: keySets, skew: skew, now: time.Now}
}

// PublicJWKS returns the tool's public key set document.
func (s *TrustStore) PublicJWKS() jwk.Set {
	return s.publicSet
}

// Verify resolves the signing key by kid, requires RS256 and checks the
// signature, exp, iat, nbf, iss and aud of token.
func (s *TrustStore) Verify(ctx context.Context, token, issuer, audience string) (jwt.Token, error) {
	reg, err := s.platforms.FindByIssuerAndClientID(ctx, issuer, audience)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, newError(KindConfiguration, ErrUntrustedIssuer, "no registration for %s / %s", issuer, audience)
		}
		return nil, internalError("find platform", err)
	}

	msg, err := jws.Parse([]byte(token))
	if err != nil {
		return nil, protocolError(ErrSignatureInvalid, "malformed token: %v", err)
	}
	sigs := msg.Signatures()
	if len(sigs) != 1 {
		return nil, protocolError(ErrSignatureInvalid, "expected one signature, got %d", len(sigs))
	}
	hdr := sigs[0].ProtectedHeaders()
	if hdr.Algorithm() != jwa.RS256 {
		return nil, protocolError(ErrSignatureInvalid, "algorithm %s not accepted", hdr.Algorithm())
	}

	set, err := s.keySet(ctx, reg)
	if err != nil {
		return nil, err
	}
	key, err := selectKey(set, hdr.KeyID())
	if err != nil {
		return nil, err
	}

	tok, err := jwt.Parse([]byte(token),
		jwt.WithKey(jwa.RS256, key),
		jwt.WithValidate(true),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithAcceptableSkew(s.skew),
		jwt.WithClock(jwt.ClockFunc(s.now)),
		jwt.WithRequiredClaim(jwt.ExpirationKey),
		jwt.WithRequiredClaim(jwt.IssuedAtKey),
	)
	if err != nil {
		return nil, classifyParseError(err)
	}
	return tok, nil
}

func (s *TrustStore) keySet(ctx context.Context, reg *platform.Registration) (jwk.Set, error) {
	if reg.KeySet != "" {
		set, err := jwk.Parse([]byte(reg.KeySet))
		if err != nil {
			return nil, newError(KindConfiguration, ErrKeyNotFound, "embedded key set of platform %d: %v", reg.ID, err)
		}
		return set, nil
	}
	if reg.KeySetURL == "" {
		return nil, newError(KindConfiguration, ErrKeyNotFound, "platform %d has no key set", reg.ID)
	}
	set, err := s.keySets.Get(ctx, reg.KeySetURL)
	if err != nil {
		return nil, newError(KindConfiguration, ErrKeyNotFound, "fetch %s: %v", reg.KeySetURL, err)
	}
	return set, nil
}

// selectKey picks the key named by kid. Without a kid only a single-key set is usable.
func selectKey(set jwk.Set, kid string) (jwk.Key, error) {
	if kid != "" {
		key, ok := set.LookupKeyID(kid)
		if !ok {
			return nil, protocolError(ErrKeyNotFound, "kid %q not in platform key set", kid)
		}
		return key, nil
	}
	if set.Len() != 1 {
		return nil, protocolError(ErrKeyNotFound, "token has no kid and key set holds %d keys", set.Len())
	}
	key, _ := set.Key(0)
	return key, nil
}

func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired()):
		return protocolError(ErrTokenExpired, "%v", err)
	case errors.Is(err, jwt.ErrInvalidIssuer()), errors.Is(err, jwt.ErrInvalidAudience()):
		return protocolError(ErrUntrustedIssuer, "%v", err)
	case jwt.IsValidationError(err):
		return protocolError(ErrInvalidClaims, "%v", err)
	default:
		return protocolError(ErrSignatureInvalid, "%v", err)
	}
}
