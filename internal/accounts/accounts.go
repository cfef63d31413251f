// Package accounts authenticates federated identities against the local
// account store and opens sessions for them.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quipper/poc/lti/tool/pkg/common/logger"
	"github.com/quipper/poc/lti/tool/pkg/repositories"
	"github.com/quipper/poc/lti/tool/pkg/repositories/identity"
)

type Service struct {
	repo identity.Repository
	ttl  time.Duration
	now  func() time.Time
}

func NewService(repo identity.Repository, sessionTTL time.Duration) *Service {
	return &Service{repo: repo, ttl: sessionTTL, now: time.Now}
}

// Authenticate returns the account linked to the federated triple, or nil
// when no profile exists for it.
func (s *Service) Authenticate(ctx context.Context, issuer, audience, subject string) (*identity.Account, error) {
	p, err := s.repo.FindProfile(ctx, issuer, audience, subject)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find profile: %w", err)
	}
	a, err := s.repo.GetAccount(ctx, p.AccountID)
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", p.AccountID, err)
	}
	return a, nil
}

func (s *Service) Login(ctx context.Context, account *identity.Account) (*identity.Session, error) {
	sess, err := s.repo.CreateSession(ctx, account.ID, s.now().Add(s.ttl))
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	logger.Debug("accounts: opened session for %s until %s", account.Username, sess.ExpiresAt.Format(time.RFC3339))
	return sess, nil
}

// Current resolves a session cookie value to its account.
func (s *Service) Current(ctx context.Context, sessionID string) (*identity.Account, error) {
	sess, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.repo.GetAccount(ctx, sess.AccountID)
}

func (s *Service) Logout(ctx context.Context, sessionID string) error {
	return s.repo.DeleteSession(ctx, sessionID)
}
