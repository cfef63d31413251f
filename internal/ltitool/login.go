package ltitool

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quipper/poc/lti/tool/pkg/common/logger"
	"github.com/quipper/poc/lti/tool/pkg/repositories/launchstate"
	"github.com/quipper/poc/lti/tool/pkg/repositories/platform"
)

// LoginRequest is a third-party initiated login, read identically from the
// query string or a form body.
type LoginRequest struct {
	Issuer         string
	LoginHint      string
	TargetLinkURI  string
	LTIMessageHint string
	ClientID       string
	DeploymentID   string
}

// LoginInitiator starts the OIDC handshake for a registered platform.
type LoginInitiator struct {
	platforms platform.Repository
	states    launchstate.Repository
	launchURL *url.URL
	ttl       time.Duration
	now       func() time.Time
	newID     func() string
}

// NewLoginInitiator creates an initiator. launchURL is the tool's launch
// endpoint; only target links pointing at it are accepted.
func NewLoginInitiator(platforms platform.Repository, states launchstate.Repository, launchURL string, ttl time.Duration) (*LoginInitiator, error) {
	u, err := url.Parse(launchURL)
	if err != nil {
		return nil, err
	}
	return &LoginInitiator{
		platforms: platforms,
		states:    states,
		launchURL: u,
		ttl:       ttl,
		now:       time.Now,
		newID:     uuid.NewString,
	}, nil
}

// Initiate stores a fresh LaunchState and returns the platform authentication
// URL the user agent must be redirected to.
func (l *LoginInitiator) Initiate(ctx context.Context, req LoginRequest) (*url.URL, error) {
	if req.Issuer == "" || req.LoginHint == "" || req.TargetLinkURI == "" {
		return nil, protocolError(ErrInvalidLoginRequest, "iss, login_hint and target_link_uri are required")
	}
	reg, err := resolveRegistration(ctx, l.platforms, req.Issuer, req.ClientID)
	if err != nil {
		return nil, err
	}
	if req.DeploymentID != "" && !reg.HasDeployment(req.DeploymentID) {
		return nil, newError(KindConfiguration, ErrUnknownDeployment, "deployment %s of platform %d", req.DeploymentID, reg.ID)
	}
	if err := l.checkTarget(req.TargetLinkURI); err != nil {
		return nil, err
	}

	authURL, err := url.Parse(reg.AuthLoginURL)
	if err != nil {
		return nil, newError(KindConfiguration, ErrUnknownPlatform, "platform %d auth login url: %v", reg.ID, err)
	}

	st := &launchstate.LaunchState{
		State:         "state-" + l.newID(),
		Nonce:         l.newID(),
		Issuer:        reg.Issuer,
		ClientID:      reg.ClientID,
		TargetLinkURI: req.TargetLinkURI,
		ExpiresAt:     l.now().Add(l.ttl),
	}
	if err := l.states.Create(ctx, st); err != nil {
		return nil, internalError("create launch state", err)
	}

	q := authURL.Query()
	q.Set("scope", "openid")
	q.Set("response_type", "id_token")
	q.Set("response_mode", "form_post")
	q.Set("prompt", "none")
	q.Set("client_id", reg.ClientID)
	q.Set("redirect_uri", req.TargetLinkURI)
	q.Set("login_hint", req.LoginHint)
	q.Set("state", st.State)
	q.Set("nonce", st.Nonce)
	if req.LTIMessageHint != "" {
		q.Set("lti_message_hint", req.LTIMessageHint)
	}
	authURL.RawQuery = q.Encode()

	logger.Debug("LTI 1.3: login initiated: iss=%s client_id=%s target=%s", reg.Issuer, reg.ClientID, req.TargetLinkURI)
	return authURL, nil
}

// checkTarget requires the target link to be the launch endpoint carrying a
// parseable content reference.
func (l *LoginInitiator) checkTarget(target string) error {
	u, err := url.Parse(target)
	if err != nil {
		return protocolError(ErrInvalidLoginRequest, "target_link_uri: %v", err)
	}
	if !strings.EqualFold(u.Scheme, l.launchURL.Scheme) || !strings.EqualFold(u.Host, l.launchURL.Host) ||
		strings.TrimRight(u.Path, "/") != strings.TrimRight(l.launchURL.Path, "/") {
		return protocolError(ErrInvalidLoginRequest, "target_link_uri %s is not the launch endpoint %s", target, l.launchURL)
	}
	if _, err := ContentRefFromTarget(target); err != nil {
		return protocolError(ErrInvalidLoginRequest, "%v", err)
	}
	return nil
}
