package ltitool

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/quipper/poc/lti/tool/pkg/common/logger"
	"github.com/quipper/poc/lti/tool/pkg/common/metrics"
	"github.com/quipper/poc/lti/tool/pkg/repositories/grades"
)

// Tool runs a launch from the validated token to the rendered component.
type Tool struct {
	Validator   *LaunchValidator
	Authorizer  *LaunchAuthorizer
	Identities  *IdentityResolver
	Permissions *PermissionBootstrapper
	Grades      *AGSRegistrar
	Content     ContentLoader
}

// LaunchResult is everything the boundary needs to answer a launch.
type LaunchResult struct {
	Claims        *Claims
	Identity      *FederatedIdentity
	GrantCreated  bool
	Fragment      *Fragment
	GradedLink    *grades.GradedResourceLink
	AGSSkipReason string
}

// Launch validates the launch, logs the identity in, bootstraps access,
// loads the content and registers grade passback. requestedID is the id query
// parameter of the launch request, if any; it must match the content bound at login.
func (t *Tool) Launch(ctx context.Context, idToken, state, requestedID string) (res *LaunchResult, err error) {
	defer func() {
		outcome := "accepted"
		if err != nil {
			outcome = string(KindOf(err))
		}
		metrics.LaunchesTotal.WithLabelValues(outcome).Inc()
	}()

	claims, err := t.Validator.Validate(ctx, idToken, state)
	if err != nil {
		return nil, err
	}
	if requestedID != "" && requestedID != claims.ContentRef.String() {
		return nil, protocolError(ErrTargetMismatch, "launch requested %s, login bound %s", requestedID, claims.ContentRef)
	}
	if body, err := json.Marshal(claims); err == nil {
		logger.Debug("LTI 1.3: launch message body: %s", body)
	}
	logger.Info("LTI 1.3: launch block: id=%s", claims.ContentRef)

	lib := claims.ContentRef.Library
	if err := t.Authorizer.Authorize(ctx, lib, claims.Issuer, claims.Audience); err != nil {
		return nil, err
	}
	ident, err := t.Identities.Resolve(ctx, claims)
	if err != nil {
		return nil, err
	}
	res = &LaunchResult{Claims: claims, Identity: ident}

	if res.GrantCreated, err = t.Permissions.EnsureAccess(ctx, ident.Principal(), lib); err != nil {
		return nil, err
	}
	if res.Fragment, err = t.Content.LoadContent(ctx, claims.ContentRef, ident.Principal()); err != nil {
		return nil, internalError("load content "+claims.ContentRef.String(), err)
	}

	link, agsErr := t.Grades.RegisterIfCapable(ctx, claims, ident.Principal())
	switch {
	case agsErr == nil:
		res.GradedLink = link
	case errors.Is(agsErr, ErrAGSSkipped):
		res.AGSSkipReason = SkipReason(agsErr)
	default:
		// grading is optional; a storage failure here never blocks the launch
		logger.Error("LTI 1.3: AGS: %v", agsErr)
	}
	return res, nil
}
