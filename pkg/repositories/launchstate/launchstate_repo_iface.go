package launchstate

import (
	"context"
	"time"
)

// LaunchState binds an OIDC login initiation to the launch that completes it.
type LaunchState struct {
	State         string    `json:"state"`
	Nonce         string    `json:"nonce"`
	Issuer        string    `json:"issuer"`
	ClientID      string    `json:"client_id"`
	TargetLinkURI string    `json:"target_link_uri"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Expired reports whether the state is no longer usable at now.
func (s *LaunchState) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Repository persists launch states and the nonces of accepted launches.
type Repository interface {
	// Create stores a new state. Expired rows may be purged as a side effect.
	Create(ctx context.Context, s *LaunchState) error
	// Consume atomically removes and returns the state. A missing, already
	// consumed or expired state yields repositories.ErrNotFound.
	Consume(ctx context.Context, state string) (*LaunchState, error)
	// TryUseNonce records nonce for issuer until exp. It returns false when the
	// nonce was already recorded and has not expired yet.
	TryUseNonce(ctx context.Context, issuer, nonce string, exp time.Time) (bool, error)
}
