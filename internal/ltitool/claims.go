package ltitool

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwt"
)

// LTI 1.3 claim names and values the tool understands.
const (
	ClaimMessageType   = "https://purl.imsglobal.org/spec/lti/claim/message_type"
	ClaimVersion       = "https://purl.imsglobal.org/spec/lti/claim/version"
	ClaimDeploymentID  = "https://purl.imsglobal.org/spec/lti/claim/deployment_id"
	ClaimTargetLinkURI = "https://purl.imsglobal.org/spec/lti/claim/target_link_uri"
	ClaimResourceLink  = "https://purl.imsglobal.org/spec/lti/claim/resource_link"
	ClaimRoles         = "https://purl.imsglobal.org/spec/lti/claim/roles"
	ClaimContext       = "https://purl.imsglobal.org/spec/lti/claim/context"
	ClaimAGSEndpoint   = "https://purl.imsglobal.org/spec/lti-ags/claim/endpoint"

	MessageTypeResourceLink = "LtiResourceLinkRequest"
	LTIVersion              = "1.3.0"

	ScopeLineItem = "https://purl.imsglobal.org/spec/lti-ags/scope/lineitem"
	ScopeScore    = "https://purl.imsglobal.org/spec/lti-ags/scope/score"
)

type ResourceLink struct {
	ID          string `json:"id"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

type LaunchContext struct {
	ID    string   `json:"id"`
	Label string   `json:"label,omitempty"`
	Title string   `json:"title,omitempty"`
	Type  []string `json:"type,omitempty"`
}

// AGSEndpoint is the assignment and grade services claim.
type AGSEndpoint struct {
	Scopes    []string `json:"scope"`
	LineItem  string   `json:"lineitem,omitempty"`
	LineItems string   `json:"lineitems,omitempty"`
}

// HasScope reports whether the endpoint advertises scope.
func (e *AGSEndpoint) HasScope(scope string) bool {
	return slices.Contains(e.Scopes, scope)
}

// Claims is the immutable result of a validated launch. ContentRef comes from
// the target link bound at login, never from the launch token alone.
type Claims struct {
	Issuer        string         `json:"iss"`
	Audience      string         `json:"aud"`
	Subject       string         `json:"sub"`
	DeploymentID  string         `json:"deployment_id"`
	MessageType   string         `json:"message_type"`
	Version       string         `json:"version"`
	Roles         []string       `json:"roles,omitempty"`
	Name          string         `json:"name,omitempty"`
	GivenName     string         `json:"given_name,omitempty"`
	FamilyName    string         `json:"family_name,omitempty"`
	Email         string         `json:"email,omitempty"`
	Context       *LaunchContext `json:"context,omitempty"`
	ResourceLink  *ResourceLink  `json:"resource_link,omitempty"`
	AGS           *AGSEndpoint   `json:"ags,omitempty"`
	TargetLinkURI string         `json:"target_link_uri"`
	ContentRef    UsageKey       `json:"-"`
	ExpiresAt     time.Time      `json:"exp"`
}

// tokenClaims mirrors the JSON body of an LTI id_token.
type tokenClaims struct {
	Subject       string         `json:"sub"`
	AuthorizedFor string         `json:"azp"`
	Nonce         string         `json:"nonce"`
	Name          string         `json:"name"`
	GivenName     string         `json:"given_name"`
	FamilyName    string         `json:"family_name"`
	Email         string         `json:"email"`
	MessageType   string         `json:"https://purl.imsglobal.org/spec/lti/claim/message_type"`
	Version       string         `json:"https://purl.imsglobal.org/spec/lti/claim/version"`
	DeploymentID  string         `json:"https://purl.imsglobal.org/spec/lti/claim/deployment_id"`
	TargetLinkURI string         `json:"https://purl.imsglobal.org/spec/lti/claim/target_link_uri"`
	Roles         []string       `json:"https://purl.imsglobal.org/spec/lti/claim/roles"`
	Context       *LaunchContext `json:"https://purl.imsglobal.org/spec/lti/claim/context"`
	ResourceLink  *ResourceLink  `json:"https://purl.imsglobal.org/spec/lti/claim/resource_link"`
	AGS           *AGSEndpoint   `json:"https://purl.imsglobal.org/spec/lti-ags/claim/endpoint"`
}

func decodeTokenClaims(tok jwt.Token) (*tokenClaims, error) {
	raw, err := json.Marshal(tok)
	if err != nil {
		return nil, fmt.Errorf("marshal token: %w", err)
	}
	var c tokenClaims
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decode lti claims: %w", err)
	}
	return &c, nil
}
