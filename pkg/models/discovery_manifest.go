package models

import "time"

// Pagination styles detected on the primary response.
const (
	PaginationNone       = "none"
	PaginationNextURL    = "next_url"
	PaginationPageNumber = "page_number"
	PaginationHasNext    = "has_next"
)

// Collected file labels.
const (
	LabelPrimary = "primary"
)

// FetchResult is what the HTTP collaborator returns for one URL.
type FetchResult struct {
	URL            string  `json:"url"`
	Body           []byte  `json:"-"`
	HTTPStatus     int     `json:"http_status"`
	ContentType    string  `json:"content_type,omitempty"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}

// IsSuccess reports a 2xx status.
func (r *FetchResult) IsSuccess() bool {
	return r.HTTPStatus >= 200 && r.HTTPStatus < 300
}

// CollectedFile is one successfully fetched and stored payload.
type CollectedFile struct {
	URL            string  `json:"url"`
	Label          string  `json:"label"`
	Path           string  `json:"path"` // storage collaborator location
	HTTPStatus     int     `json:"http_status"`
	Bytes          int     `json:"bytes"`
	ItemCount      int     `json:"item_count"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}

// PaginationInfo records how the feed pages.
type PaginationInfo struct {
	Type         string `json:"type"`
	SourceKey    string `json:"source_key,omitempty"` // key the signal was read from
	NextURL      string `json:"next_url,omitempty"`
	PageParam    string `json:"page_param,omitempty"`
	CurrentPage  int    `json:"current_page,omitempty"`
	TotalPages   int    `json:"total_pages,omitempty"`
	HasNext      bool   `json:"has_next,omitempty"`
	PagesFetched int    `json:"pages_fetched"`
}

// RegionFilter records whether and how the feed filters by region.
type RegionFilter struct {
	Detected      bool   `json:"detected"`
	Method        string `json:"method,omitempty"` // "root_key" or "query_param"
	Key           string `json:"key,omitempty"`
	BaselineCount int    `json:"baseline_count"`
	FilteredCount int    `json:"filtered_count,omitempty"`
}

// DiscoveryError is a recorded, non-fatal failure.
type DiscoveryError struct {
	URL     string `json:"url"`
	Label   string `json:"label"`
	Message string `json:"message"`
}

// ProbeResult audits one sub-resource probe, accepted or not.
type ProbeResult struct {
	URL        string `json:"url"`
	Suffix     string `json:"suffix"`
	HTTPStatus int    `json:"http_status"`
	Accepted   bool   `json:"accepted"`
	Reason     string `json:"reason,omitempty"`
}

// ManifestTotals summarizes a discovery run.
type ManifestTotals struct {
	Files          int     `json:"files"`
	Pages          int     `json:"pages"`
	EmbeddedURLs   int     `json:"embedded_urls"`
	ProbesAccepted int     `json:"probes_accepted"`
	Errors         int     `json:"errors"`
	Bytes          int     `json:"bytes"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}

// DiscoveryManifest is the outcome of crawling one feed. Every CollectedFiles
// entry maps to a payload the storage collaborator holds.
type DiscoveryManifest struct {
	RunID          string           `json:"run_id"`
	PrimaryURL     string           `json:"primary_url"`
	StartedAt      time.Time        `json:"started_at"`
	FinishedAt     time.Time        `json:"finished_at"`
	CollectedFiles []CollectedFile  `json:"collected_files"`
	Pagination     PaginationInfo   `json:"pagination_info"`
	RegionFilter   RegionFilter     `json:"region_filter"`
	EmbeddedURLs   []string         `json:"embedded_urls"`
	Probes         []ProbeResult    `json:"probes"`
	Errors         []DiscoveryError `json:"errors"`
	Totals         ManifestTotals   `json:"totals"`
}

// AddError records a non-fatal failure.
func (m *DiscoveryManifest) AddError(url, label, message string) {
	m.Errors = append(m.Errors, DiscoveryError{URL: url, Label: label, Message: message})
}

// LabelFor returns the label of a collected URL, or the URL itself.
func (m *DiscoveryManifest) LabelFor(url string) string {
	for _, f := range m.CollectedFiles {
		if f.URL == url {
			return f.Label
		}
	}
	return url
}
