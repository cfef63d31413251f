package ltitool

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for the boundary: every protocol, identity and
// configuration failure is answered with the same generic response.
type Kind string

const (
	KindConfiguration   Kind = "configuration"
	KindProtocol        Kind = "protocol"
	KindIdentity        Kind = "identity"
	KindCapabilityGap   Kind = "capability_gap"
	KindStorageConflict Kind = "storage_conflict"
	KindInternal        Kind = "internal"
)

var (
	ErrUnknownPlatform            = errors.New("unknown platform")
	ErrUnknownDeployment          = errors.New("unknown deployment")
	ErrUntrustedIssuer            = errors.New("untrusted issuer")
	ErrKeyNotFound                = errors.New("signing key not found")
	ErrSignatureInvalid           = errors.New("signature invalid")
	ErrTokenExpired               = errors.New("token expired")
	ErrInvalidClaims              = errors.New("invalid claims")
	ErrInvalidLoginRequest        = errors.New("invalid login request")
	ErrStateNotFound              = errors.New("state not found")
	ErrNonceMismatch              = errors.New("nonce mismatch")
	ErrNonceReplayed              = errors.New("nonce replayed")
	ErrTargetMismatch             = errors.New("target content mismatch")
	ErrLaunchNotAuthorized        = errors.New("library does not accept launches from this platform")
	ErrIdentityProvisioningFailed = errors.New("identity provisioning failed")
	ErrAGSSkipped                 = errors.New("grade passback registration skipped")
)

// Error carries a sentinel, its kind and a diagnostic detail that is logged
// but never shown to the user agent.
type Error struct {
	Kind   Kind
	Err    error
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Kind, e.Err, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: err, Detail: fmt.Sprintf(format, args...)}
}

func protocolError(err error, format string, args ...any) *Error {
	return newError(KindProtocol, err, format, args...)
}

// internalError wraps a storage or programming failure. The cause stays
// reachable through errors.Is/As.
func internalError(op string, err error) *Error {
	return &Error{Kind: KindInternal, Err: fmt.Errorf("%s: %w", op, err), Detail: op}
}

// KindOf returns the kind of err, or KindInternal for errors outside the taxonomy.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsRejection reports whether err must be answered with the generic client error.
func IsRejection(err error) bool {
	switch KindOf(err) {
	case KindConfiguration, KindProtocol, KindIdentity:
		return true
	}
	return false
}
