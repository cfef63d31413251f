// Package redis keeps launch states and used nonces in Redis, for deployments
// running several tool replicas without a shared SQLite file.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quipper/poc/lti/tool/pkg/repositories"
	repoIface "github.com/quipper/poc/lti/tool/pkg/repositories/launchstate"
)

// Repo implements launchstate.Repository on Redis keys with TTLs.
type Repo struct {
	client    redis.UniversalClient
	keyPrefix string
	now       func() time.Time
}

// Ensure interface compliance
var _ repoIface.Repository = (*Repo)(nil)

// New wraps client. keyPrefix namespaces every key, e.g. "ltitool:".
func New(client redis.UniversalClient, keyPrefix string) *Repo {
	return &Repo{client: client, keyPrefix: keyPrefix, now: time.Now}
}

func (r *Repo) stateKey(state string) string {
	return r.keyPrefix + "state:" + state
}

func (r *Repo) nonceKey(issuer, nonce string) string {
	return r.keyPrefix + "nonce:" + issuer + ":" + nonce
}

func (r *Repo) Create(ctx context.Context, s *repoIface.LaunchState) error {
	ttl := s.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return fmt.Errorf("launch state %s already expired", s.State)
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal launch state: %w", err)
	}
	// SetNX so a colliding state never overwrites a pending one.
	ok, err := r.client.SetNX(ctx, r.stateKey(s.State), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("store launch state: %w", err)
	}
	if !ok {
		return fmt.Errorf("launch state %s: %w", s.State, repositories.ErrAlreadyExists)
	}
	return nil
}

// Consume relies on GETDEL being atomic: exactly one caller sees the value.
func (r *Repo) Consume(ctx context.Context, state string) (*repoIface.LaunchState, error) {
	data, err := r.client.GetDel(ctx, r.stateKey(state)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("consume launch state: %w", err)
	}
	var s repoIface.LaunchState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal launch state: %w", err)
	}
	if s.Expired(r.now()) {
		return nil, repositories.ErrNotFound
	}
	return &s, nil
}

func (r *Repo) TryUseNonce(ctx context.Context, issuer, nonce string, exp time.Time) (bool, error) {
	if nonce == "" {
		return false, errors.New("empty nonce")
	}
	ttl := exp.Sub(r.now())
	if ttl < time.Second {
		ttl = time.Second
	}
	ok, err := r.client.SetNX(ctx, r.nonceKey(issuer, nonce), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("record nonce: %w", err)
	}
	return ok, nil
}
