// File: internal/prompt/classifier.go
package prompt

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/quietops/linkhawk/api/schemas"
)

// Classifier maps free text to exactly one intent from the closed set, plus
// best-effort extracted parameters. Implementations must be total: any string
// input yields a valid intent (possibly IntentUnknown), never an error caused
// by the input itself.
type Classifier interface {
	Classify(ctx context.Context, prompt string) (schemas.Intent, schemas.ExtractedParameters, error)
}

// intentKeywords maps each intent to its trigger keywords. Scoring counts
// case-insensitive substring hits; the winner is the highest non-zero score,
// with ties broken by the registration order of schemas.Intents. Multiword
// entries for create_post keep "post" from colliding with the plural "posts"
// in extraction-style prompts.
var intentKeywords = map[schemas.Intent][]string{
	schemas.IntentPostEngagement: {"like", "react", "appreciate", "thumbs up", "approval"},
	schemas.IntentCommentPost:    {"comment", "reply"},
	schemas.IntentConnectFollow:  {"connect", "follow", "invite"},
	schemas.IntentMessage:        {"message", "send a note", "dm "},
	schemas.IntentSearchContent:  {"search", "find", "look for"},
	schemas.IntentVisitProfile:   {"profile", "visit", "open"},
	schemas.IntentCreatePost:     {"create a post", "write a post", "publish", "share an update", "share a post"},
	schemas.IntentDataExtract:    {"extract", "export", "fetch", "scrape", "data"},
	schemas.IntentFeedCollection: {"scroll", "feed", "collect"},
}

// Parameter extraction patterns. Count prefers a number qualified by a unit
// word over a bare number anywhere in the prompt.
var (
	countWithUnitRe = regexp.MustCompile(`(?i)\b(\d+)\s*(?:posts?|times|items|people|connections?|profiles?|comments?)\b`)
	bareCountRe     = regexp.MustCompile(`\b(\d+)\b`)
	keywordsRe      = regexp.MustCompile(`(?i)\b(?:about|related to|on the topic of)\s+(.+?)(?:\s+(?:with|by|from|in)\s.*)?$`)
	onKeywordsRe    = regexp.MustCompile(`(?i)\bon\s+(.+?)(?:\s+(?:with|by|from|in)\s.*)?$`)
	targetPersonRe  = regexp.MustCompile(`\b(?:by|from)\s+([A-Z][a-z]+\s+[A-Z][a-z]+)`)
	targetCompanyRe = regexp.MustCompile(`\bat\s+([A-Z][A-Za-z0-9&.-]*(?:\s+[A-Z][A-Za-z0-9&.-]*)*)`)
)

// onLocationWords rejects bare-"on" captures that describe a place rather
// than a topic ("on my feed", "on the homepage", "on LinkedIn"). The explicit
// topic markers are tried first; "on" is the fallback.
var onLocationWords = map[string]bool{
	"a": true, "an": true, "the": true, "this": true, "that": true, "it": true,
	"my": true, "your": true, "his": true, "her": true, "their": true, "our": true,
	"linkedin": true,
}

// KeywordClassifier is the deterministic strategy. It is always available and
// serves as the mandatory fallback for the delegated strategy.
type KeywordClassifier struct{}

// NewKeywordClassifier returns the deterministic keyword/regex classifier.
func NewKeywordClassifier() *KeywordClassifier { return &KeywordClassifier{} }

// Classify scores every registered intent and returns the best match along
// with extracted parameters. The error return is always nil; it exists to
// satisfy the Classifier contract shared with the delegated strategy.
func (c *KeywordClassifier) Classify(_ context.Context, prompt string) (schemas.Intent, schemas.ExtractedParameters, error) {
	lower := strings.ToLower(prompt)

	best := schemas.IntentUnknown
	bestScore := 0
	for _, intent := range schemas.Intents {
		score := 0
		for _, kw := range intentKeywords[intent] {
			if strings.Contains(lower, kw) {
				score++
			}
		}
		// Strictly greater keeps the first-registered intent on ties.
		if score > bestScore {
			best, bestScore = intent, score
		}
	}

	return best, ExtractParameters(prompt), nil
}

// ExtractParameters pulls count, keywords, target person and target company
// out of a prompt by pattern matching. Fields with no match stay at their
// zero value and are omitted downstream, never defaulted.
func ExtractParameters(prompt string) schemas.ExtractedParameters {
	var params schemas.ExtractedParameters

	if m := countWithUnitRe.FindStringSubmatch(prompt); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			params.Count = n
		}
	} else if m := bareCountRe.FindStringSubmatch(prompt); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			params.Count = n
		}
	}

	if m := keywordsRe.FindStringSubmatch(prompt); m != nil {
		params.Keywords = splitKeywords(m[1])
	} else if m := onKeywordsRe.FindStringSubmatch(prompt); m != nil && isTopicPhrase(m[1]) {
		params.Keywords = splitKeywords(m[1])
	}

	if m := targetPersonRe.FindStringSubmatch(prompt); m != nil {
		params.TargetPerson = m[1]
	}
	if m := targetCompanyRe.FindStringSubmatch(prompt); m != nil {
		params.TargetCompany = m[1]
	}

	return params
}

// splitKeywords breaks a captured topic phrase on " and " and strips quoting.
func splitKeywords(raw string) []string {
	var keywords []string
	for _, part := range strings.Split(raw, " and ") {
		kw := strings.Trim(strings.TrimSpace(part), `'"`)
		if kw != "" {
			keywords = append(keywords, kw)
		}
	}
	return keywords
}

// isTopicPhrase reports whether a bare-"on" capture reads as a topic rather
// than a location.
func isTopicPhrase(raw string) bool {
	first := strings.ToLower(strings.Trim(strings.Fields(raw)[0], `'"`))
	return !onLocationWords[first]
}
