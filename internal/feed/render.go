package feed

import (
	"example.com/socialfeed/internal/models"
)

// BlockedContent replaces the text of posts from blocked authors. The post
// keeps its position in the feed; only the displayed content changes.
const BlockedContent = "Blocked message"

// AdContent is the placeholder shown between feed pages for non-premium
// viewers.
const AdContent = "placeholder (ad)"

// Item is a rendered feed entry: a post plus its display flags.
type Item struct {
	models.Post
	Blocked bool `json:"blocked,omitempty"`
	Ad      bool `json:"ad,omitempty"`
}

// Items wraps composed posts into renderable entries.
func Items(posts []models.Post) []Item {
	items := make([]Item, len(posts))
	for i, p := range posts {
		items[i] = Item{Post: p}
	}
	return items
}

// ApplyBlocking substitutes the fixed placeholder for posts authored by
// someone the viewer blocks, in place, preserving feed order.
func ApplyBlocking(items []Item, viewer *models.ViewerSummary) []Item {
	if viewer == nil || len(viewer.Blocking) == 0 {
		return items
	}

	blockedSet := make(map[string]struct{}, len(viewer.Blocking))
	for _, id := range viewer.Blocking {
		blockedSet[id] = struct{}{}
	}

	for i := range items {
		if _, ok := blockedSet[items[i].CreatorID]; ok {
			items[i].Content = BlockedContent
			items[i].Blocked = true
		}
	}
	return items
}

// WithPlaceholders inserts an ad entry after every interval-th real entry
// (1-indexed), unless the viewer has premium mode enabled.
func WithPlaceholders(items []Item, interval int, premium bool) []Item {
	if premium || interval <= 0 {
		return items
	}

	out := make([]Item, 0, len(items)+len(items)/interval)
	for i, item := range items {
		out = append(out, item)
		if (i+1)%interval == 0 {
			out = append(out, Item{
				Post: models.Post{Content: AdContent},
				Ad:   true,
			})
		}
	}
	return out
}
