// Package search finds documents by title within the caller's scope: their
// organization's documents, or their own when they have no organization.
package search

import "time"

// Result is a single search hit returned to the caller.
type Result struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Highlight      string    `json:"highlight"`
	OwnerID        string    `json:"ownerId"`
	OrganizationID string    `json:"organizationId,omitempty"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Query describes a search request. OrganizationID wins over OwnerID.
type Query struct {
	Text           string
	OwnerID        string
	OrganizationID string
	Limit          int
	Offset         int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// DocumentRecord is the data we index for a document.
type DocumentRecord struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	OwnerID        string `json:"ownerId"`
	OrganizationID string `json:"organizationId"`
	UpdatedAt      int64  `json:"updatedAt"`
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 20
	}
	return limit
}
