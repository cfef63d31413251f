package grades

import (
	"context"
	"time"
)

// GradedResourceLink records where grades for a launched component go.
// (Principal, ContentRef, ResourceLinkID) is unique.
type GradedResourceLink struct {
	ID             int64     `json:"id"`
	Principal      string    `json:"principal"`
	ContentRef     string    `json:"content_ref"`
	ResourceLinkID string    `json:"resource_link_id"`
	ResourceTitle  string    `json:"resource_title,omitempty"`
	LineItemURL    string    `json:"lineitem_url"`
	LineItemsURL   string    `json:"lineitems_url,omitempty"`
	Scopes         []string  `json:"scopes"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Filter narrows List. Empty fields match everything.
type Filter struct {
	Principal  string
	ContentRef string
}

// Repository defines persistence for graded resource links.
type Repository interface {
	// Upsert inserts l or, when its key exists, overwrites the endpoint fields.
	// ID, CreatedAt and UpdatedAt are filled from the stored row.
	Upsert(ctx context.Context, l *GradedResourceLink) error
	Get(ctx context.Context, id int64) (*GradedResourceLink, error)
	List(ctx context.Context, f Filter) ([]*GradedResourceLink, error)
}
