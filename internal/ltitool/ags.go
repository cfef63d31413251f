package ltitool

import (
	"context"
	"errors"

	"github.com/quipper/poc/lti/tool/pkg/common/logger"
	"github.com/quipper/poc/lti/tool/pkg/common/metrics"
	"github.com/quipper/poc/lti/tool/pkg/repositories/grades"
)

// Reasons a launch is not registered for grade passback.
const (
	SkipNoEndpoint   = "no_endpoint"
	SkipMissingScope = "missing_scope"
	SkipNoLineItem   = "no_lineitem"
)

// GradeLinkStore upserts graded resource links.
type GradeLinkStore interface {
	Upsert(ctx context.Context, l *grades.GradedResourceLink) error
}

// AGSRegistrar records where grades of a launched component should be posted.
type AGSRegistrar struct {
	links GradeLinkStore
}

func NewAGSRegistrar(links GradeLinkStore) *AGSRegistrar {
	return &AGSRegistrar{links: links}
}

// RegisterIfCapable upserts the graded resource link of the launch. A launch
// without a usable endpoint returns an ErrAGSSkipped error of kind
// KindCapabilityGap whose Detail is the skip reason; callers never fail the
// launch because of it.
func (r *AGSRegistrar) RegisterIfCapable(ctx context.Context, c *Claims, principal string) (*grades.GradedResourceLink, error) {
	ep := c.AGS
	if ep == nil {
		return nil, r.skip(SkipNoEndpoint, "launch carries no endpoint claim")
	}
	for _, scope := range []string{ScopeLineItem, ScopeScore} {
		if !ep.HasScope(scope) {
			return nil, r.skip(SkipMissingScope, "platform does not support required scope "+scope)
		}
	}
	if ep.LineItem == "" {
		return nil, r.skip(SkipNoLineItem, "platform did not pass lineitem")
	}

	link := &grades.GradedResourceLink{
		Principal:      principal,
		ContentRef:     c.ContentRef.String(),
		ResourceLinkID: c.ResourceLink.ID,
		ResourceTitle:  c.ResourceLink.Title,
		LineItemURL:    ep.LineItem,
		LineItemsURL:   ep.LineItems,
		Scopes:         ep.Scopes,
	}
	if err := r.links.Upsert(ctx, link); err != nil {
		metrics.AGSRegistrationsTotal.WithLabelValues("error").Inc()
		return nil, internalError("upsert graded resource", err)
	}
	metrics.AGSRegistrationsTotal.WithLabelValues("registered").Inc()
	logger.Info("LTI 1.3: AGS: upserted graded resource %d for %s on %s (lineitem %s)", link.ID, principal, link.ContentRef, link.LineItemURL)
	return link, nil
}

func (r *AGSRegistrar) skip(reason, detail string) error {
	metrics.AGSRegistrationsTotal.WithLabelValues("skipped_" + reason).Inc()
	logger.Infow("LTI 1.3: AGS: registration skipped", "reason", reason, "detail", detail)
	return &Error{Kind: KindCapabilityGap, Err: ErrAGSSkipped, Detail: reason}
}

// SkipReason returns the skip reason carried by err, or "".
func SkipReason(err error) string {
	if KindOf(err) != KindCapabilityGap {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Detail
	}
	return ""
}
