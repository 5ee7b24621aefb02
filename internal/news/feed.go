package news

import (
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Votes carries the community vote counts attached to a news event.
type Votes struct {
	Positive  int `json:"positive"`
	Negative  int `json:"negative"`
	Important int `json:"important"`
	Liked     int `json:"liked"`
	Disliked  int `json:"disliked"`
	Lol       int `json:"lol"`
	Toxic     int `json:"toxic"`
	Saved     int `json:"saved"`
}

// Event is one deduplicated news item delivered by the news collaborator.
type Event struct {
	ID          string    `json:"id"`
	Symbol      string    `json:"symbol"`
	Title       string    `json:"title"`
	Kind        string    `json:"kind"` // "news" | "media"
	Category    string    `json:"category"`
	PublishedAt time.Time `json:"published_at"`
	Votes       Votes     `json:"votes"`
}

// ParseEvents extracts events for a symbol from a raw feed payload.
// The feed format is loose JSON; gjson keeps us tolerant of extra fields
// and providers that omit vote categories.
func ParseEvents(payload []byte, symbol string) []Event {
	results := gjson.GetBytes(payload, "results")
	if !results.Exists() {
		return nil
	}
	var out []Event
	results.ForEach(func(_, item gjson.Result) bool {
		ev := Event{
			ID:       item.Get("id").String(),
			Symbol:   symbol,
			Title:    item.Get("title").String(),
			Kind:     strings.ToLower(item.Get("kind").String()),
			Category: strings.ToLower(item.Get("category").String()),
		}
		if ts := item.Get("published_at").String(); ts != "" {
			if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
				ev.PublishedAt = parsed.UTC()
			}
		}
		votes := item.Get("votes")
		ev.Votes = Votes{
			Positive:  int(votes.Get("positive").Int()),
			Negative:  int(votes.Get("negative").Int()),
			Important: int(votes.Get("important").Int()),
			Liked:     int(votes.Get("liked").Int()),
			Disliked:  int(votes.Get("disliked").Int()),
			Lol:       int(votes.Get("lol").Int()),
			Toxic:     int(votes.Get("toxic").Int()),
			Saved:     int(votes.Get("saved").Int()),
		}
		if ev.ID != "" {
			out = append(out, ev)
		}
		return true
	})
	return out
}
