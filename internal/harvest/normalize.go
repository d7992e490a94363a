// File: internal/harvest/normalize.go
package harvest

import (
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/quietops/linkhawk/api/schemas"
)

// normalizeResult turns the agent's loose output into the typed HarvestResult.
// Structured records become validated FetchedPost values; anything else is
// coerced to a confirmation string.
func normalizeResult(raw schemas.RawResult, logger *zap.Logger) schemas.HarvestResult {
	if !raw.IsRecords() {
		text := strings.TrimSpace(raw.Text)
		if text == "" {
			text = "No result returned"
		}
		return schemas.HarvestResult{Kind: schemas.ResultConfirmation, Confirmation: text}
	}

	posts := make([]schemas.FetchedPost, 0, len(raw.Records))
	dropped := 0
	for i, record := range raw.Records {
		post := postFromRecord(record)
		if err := post.Validate(); err != nil {
			// Partial success: a malformed record costs itself, not the call.
			dropped++
			logger.Warn("Dropping invalid harvested record",
				zap.Int("index", i),
				zap.Error(err))
			continue
		}
		posts = append(posts, post)
	}
	return schemas.HarvestResult{Kind: schemas.ResultPosts, Posts: posts, Dropped: dropped}
}

// postFromRecord maps one key-value record onto a FetchedPost, coercing the
// loosely typed values the agent produces.
func postFromRecord(record map[string]any) schemas.FetchedPost {
	return schemas.FetchedPost{
		PostID:             stringField(record, "post_id"),
		PostURL:            stringField(record, "post_url"),
		AuthorName:         stringField(record, "author_name"),
		AuthorURL:          stringField(record, "author_url"),
		AuthorHeadline:     stringField(record, "author_headline"),
		ContentText:        stringField(record, "content_text"),
		PostedTimestampStr: stringField(record, "posted_timestamp_str"),
		LikesCount:         countField(record, "likes_count"),
		CommentsCount:      countField(record, "comments_count"),
		RepostsCount:       countField(record, "reposts_count"),
		ViewsCount:         countField(record, "views_count"),
	}
}

func stringField(record map[string]any, key string) string {
	if v, ok := record[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// countField coerces the numeric shapes JSON decoding and scraping produce:
// float64 from the decoder, int from in-process agents, digit strings from the
// page itself. Unparseable values read as absent.
func countField(record map[string]any, key string) *int {
	v, ok := record[key]
	if !ok || v == nil {
		return nil
	}
	switch n := v.(type) {
	case float64:
		c := int(n)
		return &c
	case int:
		c := n
		return &c
	case string:
		c, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return nil
		}
		return &c
	default:
		return nil
	}
}
