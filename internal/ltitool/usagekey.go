package ltitool

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var keyPart = regexp.MustCompile(`^[A-Za-z0-9_.~-]+$`)

// LibraryKey identifies a content library: lib:<org>:<slug>.
type LibraryKey struct {
	Org  string
	Slug string
}

func (k LibraryKey) String() string {
	return "lib:" + k.Org + ":" + k.Slug
}

// ParseLibraryKey parses lib:<org>:<slug>.
func ParseLibraryKey(s string) (LibraryKey, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 || parts[0] != "lib" {
		return LibraryKey{}, fmt.Errorf("invalid library key %q", s)
	}
	k := LibraryKey{Org: parts[1], Slug: parts[2]}
	if !keyPart.MatchString(k.Org) || !keyPart.MatchString(k.Slug) {
		return LibraryKey{}, fmt.Errorf("invalid library key %q", s)
	}
	return k, nil
}

// UsageKey identifies one component inside a library: lb:<org>:<lib>:<type>:<id>.
type UsageKey struct {
	Library   LibraryKey
	BlockType string
	BlockID   string
}

func (k UsageKey) String() string {
	return "lb:" + k.Library.Org + ":" + k.Library.Slug + ":" + k.BlockType + ":" + k.BlockID
}

func (k UsageKey) IsZero() bool { return k == UsageKey{} }

// ParseUsageKey parses lb:<org>:<lib>:<type>:<id>.
func ParseUsageKey(s string) (UsageKey, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 5 || parts[0] != "lb" {
		return UsageKey{}, fmt.Errorf("invalid usage key %q", s)
	}
	for _, p := range parts[1:] {
		if !keyPart.MatchString(p) {
			return UsageKey{}, fmt.Errorf("invalid usage key %q", s)
		}
	}
	return UsageKey{
		Library:   LibraryKey{Org: parts[1], Slug: parts[2]},
		BlockType: parts[3],
		BlockID:   parts[4],
	}, nil
}

// ContentRefFromTarget extracts the usage key carried in the id query
// parameter of a target link URI.
func ContentRefFromTarget(targetLinkURI string) (UsageKey, error) {
	u, err := url.Parse(targetLinkURI)
	if err != nil {
		return UsageKey{}, fmt.Errorf("parse target link uri: %w", err)
	}
	id := u.Query().Get("id")
	if id == "" {
		return UsageKey{}, fmt.Errorf("target link uri %q has no id parameter", targetLinkURI)
	}
	return ParseUsageKey(id)
}
