// File: internal/prompt/renderer.go
package prompt

import (
	"fmt"
	"strings"

	"github.com/quietops/linkhawk/api/schemas"
)

// ActionSet marks which coarse actions a prompt implies. A single prompt may
// imply several at once; the renderer emits one phase block per action in a
// fixed canonical order.
type ActionSet struct {
	Search  bool
	Connect bool
	Comment bool
	Like    bool
	Post    bool
}

// Any reports whether at least one action was detected.
func (a ActionSet) Any() bool {
	return a.Search || a.Connect || a.Comment || a.Like || a.Post
}

func (a ActionSet) union(b ActionSet) ActionSet {
	return ActionSet{
		Search:  a.Search || b.Search,
		Connect: a.Connect || b.Connect,
		Comment: a.Comment || b.Comment,
		Like:    a.Like || b.Like,
		Post:    a.Post || b.Post,
	}
}

// actionTriggers maps each coarse action to the keywords that imply it.
// Connecting implies searching: people must be found before they can be
// invited.
var actionTriggers = []struct {
	keywords []string
	apply    func(*ActionSet)
}{
	{[]string{"search", "find", "look for", "fetch", "extract", "scrape", "collect"}, func(a *ActionSet) { a.Search = true }},
	{[]string{"connect", "follow", "invite", "network with"}, func(a *ActionSet) { a.Connect = true; a.Search = true }},
	{[]string{"comment", "reply"}, func(a *ActionSet) { a.Comment = true }},
	{[]string{"like", "react"}, func(a *ActionSet) { a.Like = true }},
	{[]string{"create a post", "write a post", "publish", "share an update", "share a post"}, func(a *ActionSet) { a.Post = true }},
}

// DetectActions derives the action set from prompt text alone, with no formal
// classification involved. The generic enhancement path relies on this so
// that even template-free output is action-aware.
func DetectActions(prompt string) ActionSet {
	lower := strings.ToLower(prompt)
	var actions ActionSet
	for _, trigger := range actionTriggers {
		for _, kw := range trigger.keywords {
			if strings.Contains(lower, kw) {
				trigger.apply(&actions)
				break
			}
		}
	}
	return actions
}

// intentActions maps a classified intent to the actions its template implies.
// The renderer unions this with DetectActions over the prompt text, so a
// compound prompt ("search AND connect") keeps all its phases.
func intentActions(intent schemas.Intent) ActionSet {
	switch intent {
	case schemas.IntentPostEngagement:
		return ActionSet{Like: true}
	case schemas.IntentCommentPost:
		return ActionSet{Comment: true, Search: true}
	case schemas.IntentConnectFollow, schemas.IntentMessage:
		return ActionSet{Connect: true, Search: true}
	case schemas.IntentSearchContent, schemas.IntentVisitProfile,
		schemas.IntentDataExtract, schemas.IntentFeedCollection:
		return ActionSet{Search: true}
	case schemas.IntentCreatePost:
		return ActionSet{Post: true}
	default:
		return ActionSet{}
	}
}

// The fixed safety guidelines every transformed instruction carries.
var safetyGuidelines = []string{
	"Maintain professional and respectful tone in all interactions",
	"Ensure all actions are constructive and thoughtful",
	"Follow LinkedIn's community standards and best practices",
	"Be considerate and appropriate in all engagements",
	"Avoid spam-like behavior or excessive automated actions",
	"Respect others' time and privacy",
}

var executionGuidelines = []string{
	"Pace every action with natural pauses between steps",
	"Stay within LinkedIn's rate limits and stop if asked to verify your identity",
	"Prefer thoughtful engagement over volume",
	"Confirm each step succeeded before starting the next",
}

// minimalPlan is rendered when no action is detected at all.
const minimalPlan = "1. Navigate to LinkedIn\n2. Perform the requested action"

// Renderer turns an intent (or a bare action set) plus extracted parameters
// into a multi-phase execution plan with a fixed safety trailer.
type Renderer struct {
	// draftPhrases switches comment composition into draft-only mode when any
	// of them appears in the prompt.
	draftPhrases []string
}

// NewRenderer builds a Renderer with the given draft-only phrase table. A nil
// or empty table disables draft detection.
func NewRenderer(draftPhrases []string) *Renderer {
	return &Renderer{draftPhrases: draftPhrases}
}

// Render produces the plan for a classified intent. The action set is the
// union of what the intent implies and what the prompt text itself mentions,
// so phases always correspond exactly to the detected actions.
func (r *Renderer) Render(intent schemas.Intent, params schemas.ExtractedParameters, cleanPrompt string) string {
	actions := intentActions(intent).union(DetectActions(cleanPrompt))
	return r.RenderActions(actions, params, cleanPrompt, intent)
}

// RenderActions produces the plan for a bare action set, bypassing formal
// classification. This is the generic enhancement path.
func (r *Renderer) RenderActions(actions ActionSet, params schemas.ExtractedParameters, cleanPrompt string, intent schemas.Intent) string {
	var b strings.Builder
	b.WriteString("DETAILED BROWSER AUTOMATION PLAN:\n")

	if !actions.Any() {
		b.WriteString(minimalPlan)
		b.WriteString("\n")
		r.writeTrailer(&b, actions)
		return b.String()
	}

	// Canonical phase order: SEARCH, CONNECTION, RESEARCH/COMMENT,
	// ENGAGEMENT, then posting.
	if actions.Search {
		r.writeSearchPhase(&b, params, intent)
	}
	if actions.Connect {
		r.writeConnectionPhase(&b, params)
	}
	if actions.Comment {
		r.writeResearchPhase(&b)
		r.writeCommentPhase(&b, cleanPrompt)
	}
	if actions.Like {
		r.writeEngagementPhase(&b, params)
	}
	if actions.Post {
		r.writePostingPhase(&b)
	}

	r.writeTrailer(&b, actions)
	return b.String()
}

func (r *Renderer) writeSearchPhase(b *strings.Builder, params schemas.ExtractedParameters, intent schemas.Intent) {
	topic := "relevant content"
	if len(params.Keywords) > 0 {
		topic = strings.Join(params.Keywords, " and ")
	}

	target := ""
	if params.TargetPerson != "" {
		target += fmt.Sprintf(" by %s", params.TargetPerson)
	}
	if params.TargetCompany != "" {
		target += fmt.Sprintf(" at %s", params.TargetCompany)
	}

	b.WriteString("\nSEARCH PHASE:\n")
	b.WriteString("1. Navigate to LinkedIn and open the search bar\n")
	fmt.Fprintf(b, "2. Search for %s%s\n", topic, target)
	if params.Count > 0 {
		fmt.Fprintf(b, "3. Review the results and select the %d most relevant matches\n", params.Count)
	} else {
		b.WriteString("3. Review the results and select the most relevant matches\n")
	}
	if intent == schemas.IntentDataExtract || intent == schemas.IntentFeedCollection {
		b.WriteString("4. Record each post's author, content text and engagement counts\n")
	}
}

func (r *Renderer) writeConnectionPhase(b *strings.Builder, params schemas.ExtractedParameters) {
	b.WriteString("\nCONNECTION PHASE:\n")
	b.WriteString("1. Open each selected profile in turn\n")
	b.WriteString("2. Click the Connect button\n")
	b.WriteString("3. Send personalized connection messages referencing shared interests or recent work\n")
	if params.Count > 0 {
		fmt.Fprintf(b, "4. Stop after %d connection requests and verify each was sent\n", params.Count)
	} else {
		b.WriteString("4. Verify each request was sent successfully\n")
	}
}

func (r *Renderer) writeResearchPhase(b *strings.Builder) {
	b.WriteString("\nRESEARCH PHASE:\n")
	b.WriteString("1. Open each candidate post and read it in full\n")
	b.WriteString("2. Note the author's role and the key points being made\n")
	b.WriteString("3. Identify where you can add genuine value to the conversation\n")
}

func (r *Renderer) writeCommentPhase(b *strings.Builder, cleanPrompt string) {
	b.WriteString("\nCOMMENT COMPOSITION:\n")
	b.WriteString("1. Write thoughtful, value-adding comments tailored to each post\n")
	b.WriteString("2. Keep each comment concise, specific and professional\n")
	if r.isDraftOnly(cleanPrompt) {
		b.WriteString("3. Draft each comment but do not submit it\n")
	} else {
		b.WriteString("3. Submit each comment\n")
	}
}

func (r *Renderer) writeEngagementPhase(b *strings.Builder, params schemas.ExtractedParameters) {
	b.WriteString("\nENGAGEMENT PHASE:\n")
	b.WriteString("1. Scroll the feed and locate the target posts\n")
	if params.Count > 0 {
		fmt.Fprintf(b, "2. Click the like button on each of the %d selected posts\n", params.Count)
	} else {
		b.WriteString("2. Click the like button on each selected post\n")
	}
	b.WriteString("3. Verify the reaction registered before moving on\n")
}

func (r *Renderer) writePostingPhase(b *strings.Builder) {
	b.WriteString("\nPOSTING PHASE:\n")
	b.WriteString("1. Click \"Start a post\" at the top of the feed\n")
	b.WriteString("2. Compose the update described in the task\n")
	b.WriteString("3. Review for tone and accuracy, then publish\n")
}

// writeTrailer appends safety guidelines, execution guidelines and, when any
// action is present, the selector hints relevant to it.
func (r *Renderer) writeTrailer(b *strings.Builder, actions ActionSet) {
	b.WriteString("\nSAFETY GUIDELINES:\n")
	for _, g := range safetyGuidelines {
		fmt.Fprintf(b, "- %s\n", g)
	}

	b.WriteString("\nEXECUTION GUIDELINES:\n")
	for _, g := range executionGuidelines {
		fmt.Fprintf(b, "- %s\n", g)
	}

	hints := domHints(actions)
	if len(hints) == 0 {
		return
	}
	b.WriteString("\nLinkedIn DOM HINTS:\n")
	for _, h := range hints {
		fmt.Fprintf(b, "- %s\n", h)
	}
}

// domHints returns the selector and navigation hints for the detected
// actions, one distinct hint set per action type.
func domHints(actions ActionSet) []string {
	var hints []string
	if actions.Search {
		hints = append(hints,
			`Search input: input[aria-label="Search"] in the global nav`,
			"Result cards: div.search-results-container, scroll to load more")
	}
	if actions.Connect {
		hints = append(hints,
			`Connect button: button[aria-label*="Invite"] or button[aria-label*="Connect"]`,
			`Add-a-note dialog: button[aria-label="Add a note"]`)
	}
	if actions.Comment {
		hints = append(hints,
			`Comment button: button[aria-label*="Comment"]`,
			`Comment box: div.ql-editor[contenteditable="true"]`)
	}
	if actions.Like {
		hints = append(hints,
			`Like button: button[aria-label*="Like"]`,
			"A filled/colored button means the post is already liked; do not toggle it off")
	}
	if actions.Post {
		hints = append(hints,
			`Start a post: button[aria-label*="Start a post"] above the feed`,
			`Publish: button[aria-label="Post"] in the composer dialog`)
	}
	return hints
}

func (r *Renderer) isDraftOnly(prompt string) bool {
	lower := strings.ToLower(prompt)
	for _, phrase := range r.draftPhrases {
		if phrase != "" && strings.Contains(lower, strings.ToLower(phrase)) {
			return true
		}
	}
	return false
}
