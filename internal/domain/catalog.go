// Package domain provides shared domain types for the MarieCoder session core.
package domain

import "time"

// CatalogItem is one installable entry of the MCP marketplace catalog.
// After normalization every item carries non-nil Tags and defaulted counters;
// consumers never see missing numeric or collection fields.
//
// Example JSON representation:
//
//	{
//	    "mcp_id": "github.com/example/weather-mcp",
//	    "name": "Weather",
//	    "github_stars": 421,
//	    "download_count": 1532,
//	    "tags": ["weather", "api"]
//	}
type CatalogItem struct {
	// McpID is the unique identifier of the catalog entry.
	McpID string `json:"mcp_id"`

	// Name is the display name of the entry.
	Name string `json:"name,omitempty"`

	// Description is a short human-readable summary.
	Description string `json:"description,omitempty"`

	// GithubStars is the upstream star count. Defaults to 0 when the
	// upstream source omits it.
	GithubStars int `json:"github_stars"`

	// DownloadCount is the install count. Defaults to 0 when omitted.
	DownloadCount int `json:"download_count"`

	// Tags categorize the entry. Defaults to an empty slice when omitted.
	Tags []string `json:"tags"`
}

// MarketplaceCatalog is the externally-sourced list of installable items,
// replaced wholesale on each successful refresh and cached in the persistent
// store. It is never partially updated.
type MarketplaceCatalog struct {
	// Items is the normalized catalog content.
	Items []CatalogItem `json:"items"`

	// FetchedAt is when this catalog snapshot was retrieved.
	FetchedAt time.Time `json:"fetched_at"`
}
