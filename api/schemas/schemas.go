package schemas

import (
	"net/url"
	"strings"
)

// -- Intent Schemas --

// Intent is the closed category describing the coarse automation action a
// prompt requests. Exactly one intent is selected per prompt.
type Intent string

const (
	IntentPostEngagement Intent = "post_engagement"
	IntentCommentPost    Intent = "comment_post"
	IntentConnectFollow  Intent = "connect_follow"
	IntentMessage        Intent = "message"
	IntentSearchContent  Intent = "search_content"
	IntentVisitProfile   Intent = "visit_profile"
	IntentCreatePost     Intent = "create_post"
	IntentDataExtract    Intent = "data_extract"
	IntentFeedCollection Intent = "feed_collection"
	IntentUnknown        Intent = "unknown"
)

// Intents lists every classifiable intent in registration order. The order is
// load-bearing: the deterministic classifier breaks score ties by taking the
// first-registered intent.
var Intents = []Intent{
	IntentPostEngagement,
	IntentCommentPost,
	IntentConnectFollow,
	IntentMessage,
	IntentSearchContent,
	IntentVisitProfile,
	IntentCreatePost,
	IntentDataExtract,
	IntentFeedCollection,
}

// Valid reports whether i is a member of the closed intent set (including
// IntentUnknown).
func (i Intent) Valid() bool {
	if i == IntentUnknown {
		return true
	}
	for _, known := range Intents {
		if i == known {
			return true
		}
	}
	return false
}

// ExtractedParameters carries the best-effort parameters pulled out of a
// prompt. Absent fields stay at their zero value and are omitted from JSON so
// they never corrupt downstream template formatting.
type ExtractedParameters struct {
	Count         int      `json:"count,omitempty"`
	Keywords      []string `json:"keywords,omitempty"`
	TargetPerson  string   `json:"target_person,omitempty"`
	TargetCompany string   `json:"target_company,omitempty"`
}

// IsZero reports whether no parameter was extracted at all.
func (p ExtractedParameters) IsZero() bool {
	return p.Count == 0 && len(p.Keywords) == 0 && p.TargetPerson == "" && p.TargetCompany == ""
}

// -- Harvest Result Schemas --

// FetchedPost is the normalized, validated record for one harvested piece of
// content. PostID, AuthorName and ContentText are mandatory; a record missing
// any of them is dropped during normalization rather than surfaced with empty
// placeholders.
type FetchedPost struct {
	PostID             string `json:"post_id"`
	PostURL            string `json:"post_url,omitempty"`
	AuthorName         string `json:"author_name"`
	AuthorURL          string `json:"author_url,omitempty"`
	AuthorHeadline     string `json:"author_headline,omitempty"`
	ContentText        string `json:"content_text"`
	PostedTimestampStr string `json:"posted_timestamp_str,omitempty"`
	LikesCount         *int   `json:"likes_count,omitempty"`
	CommentsCount      *int   `json:"comments_count,omitempty"`
	RepostsCount       *int   `json:"reposts_count,omitempty"`
	ViewsCount         *int   `json:"views_count,omitempty"`
}

// Validate enforces the record invariants: mandatory fields non-empty,
// optional URLs well-formed, engagement counts non-negative.
func (p *FetchedPost) Validate() error {
	var missing []string
	if strings.TrimSpace(p.PostID) == "" {
		missing = append(missing, "post_id")
	}
	if strings.TrimSpace(p.AuthorName) == "" {
		missing = append(missing, "author_name")
	}
	if strings.TrimSpace(p.ContentText) == "" {
		missing = append(missing, "content_text")
	}
	if len(missing) > 0 {
		return &RecordValidationError{MissingFields: missing}
	}

	for field, raw := range map[string]string{"post_url": p.PostURL, "author_url": p.AuthorURL} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return &RecordValidationError{MissingFields: []string{field}, Reason: "malformed URL"}
		}
	}

	for field, count := range map[string]*int{
		"likes_count":    p.LikesCount,
		"comments_count": p.CommentsCount,
		"reposts_count":  p.RepostsCount,
		"views_count":    p.ViewsCount,
	} {
		if count != nil && *count < 0 {
			return &RecordValidationError{MissingFields: []string{field}, Reason: "negative count"}
		}
	}
	return nil
}

// ResultKind discriminates the two shapes a harvest can produce.
type ResultKind string

const (
	// ResultConfirmation carries a free-text confirmation from the agent.
	ResultConfirmation ResultKind = "confirmation"
	// ResultPosts carries a list of validated FetchedPost records.
	ResultPosts ResultKind = "posts"
)

// HarvestResult is the tagged union returned by a harvest call: either a
// confirmation string or an ordered list of validated posts. Dropped counts
// records that failed per-record validation and were discarded (partial
// success, not failure).
type HarvestResult struct {
	Kind         ResultKind    `json:"kind"`
	Confirmation string        `json:"confirmation,omitempty"`
	Posts        []FetchedPost `json:"posts,omitempty"`
	Dropped      int           `json:"dropped,omitempty"`
}

// RawResult is the untyped output of an execution agent run. The agent
// contract is loose by design: it hands back either free text or a list of
// key-value records, and normalization decides which it is. Records takes
// precedence when non-nil.
type RawResult struct {
	Text    string
	Records []map[string]any
}

// IsRecords reports whether the raw result carries structured records.
func (r RawResult) IsRecords() bool { return r.Records != nil }
