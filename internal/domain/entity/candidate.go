package entity

import "time"

// Candidate is one cropped object detected in a frame, the pipeline's
// unit of work. Immutable once created by the region extractor.
type Candidate struct {
	// FrameIndex is the sampled frame the crop came from.
	FrameIndex int
	// Index is dense and unique within the frame (0..k-1), not globally.
	Index int
	Box   BoundingBox
	// CropPath is the crop written to the run's scratch directory.
	CropPath string
}

// PublishedRef is the externally reachable URL of a candidate's crop,
// the handle the visual search is keyed on.
type PublishedRef struct {
	URL        string    `json:"url"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// MatchDomain classifies a match's destination host.
type MatchDomain string

const (
	// MatchDomainRetail marks links on the configured marketplace
	// allow-list, eligible for the purchase flow.
	MatchDomainRetail MatchDomain = "recognized-retail"
	MatchDomainOther  MatchDomain = "other"
)

// Match is one ranked visual-search result for a candidate. Order is
// the provider's relevance order and is never changed locally.
type Match struct {
	Rank   int         `json:"rank"`
	Title  string      `json:"title"`
	Link   string      `json:"link"`
	Domain MatchDomain `json:"domain"`
}

// CandidateStatus is the per-candidate outcome reported next to the
// crop in the final result. Failures at one candidate never touch its
// siblings, so every candidate carries its own status.
type CandidateStatus string

const (
	CandidateStatusMatched           CandidateStatus = "matched"
	CandidateStatusNoMatches         CandidateStatus = "no_matches"
	CandidateStatusPublishFailed     CandidateStatus = "publish_failed"
	CandidateStatusSearchUnavailable CandidateStatus = "search_unavailable"
)

// CandidateResult is the rendering-ready record for one candidate:
// the crop, where it ended up, and what (if anything) was found for it.
type CandidateResult struct {
	FrameIndex int             `json:"frame_index"`
	Index      int             `json:"candidate_index"`
	Box        BoundingBox     `json:"box"`
	CropKey    string          `json:"crop_key,omitempty"`
	Status     CandidateStatus `json:"status"`
	StatusInfo string          `json:"status_info,omitempty"`
	Published  *PublishedRef   `json:"published,omitempty"`
	Matches    []Match         `json:"matches,omitempty"`
}

// RetailMatches returns the matches eligible for a buy affordance,
// in their original order.
func (r CandidateResult) RetailMatches() []Match {
	var out []Match
	for _, m := range r.Matches {
		if m.Domain == MatchDomainRetail {
			out = append(out, m)
		}
	}
	return out
}
