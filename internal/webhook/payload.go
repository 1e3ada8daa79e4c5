package webhook

import (
	"encoding/json"
	"fmt"
	"time"

	"igdmbot/pkg/models"
)

// notification is the body of a comments delivery.
type notification struct {
	Object string  `json:"object"`
	Entry  []entry `json:"entry"`
}

type entry struct {
	ID      string   `json:"id"`
	Time    int64    `json:"time"`
	Changes []change `json:"changes"`
}

type change struct {
	Field string       `json:"field"`
	Value commentValue `json:"value"`
}

type commentValue struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	Verb     string `json:"verb"`
	ParentID string `json:"parent_id"`
	From     struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"from"`
	Media struct {
		ID string `json:"id"`
	} `json:"media"`
}

// Parse normalizes a delivery into comments. Changes that are not new
// comments, and comments written by the receiving account itself, are
// counted in ignored.
func Parse(body []byte, received time.Time) (comments []models.Comment, ignored int, err error) {
	var n notification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, 0, fmt.Errorf("decode webhook payload: %w", err)
	}

	for _, e := range n.Entry {
		ts := received
		if e.Time > 0 {
			ts = time.Unix(e.Time, 0)
		}
		for _, ch := range e.Changes {
			v := ch.Value
			if ch.Field != "comments" || (v.Verb != "" && v.Verb != "add") {
				ignored++
				continue
			}
			if v.ID == "" || v.From.ID == "" {
				ignored++
				continue
			}
			// Our own public replies come back as comment events.
			if e.ID != "" && v.From.ID == e.ID {
				ignored++
				continue
			}
			comments = append(comments, models.Comment{
				ID:             v.ID,
				PostID:         v.Media.ID,
				AuthorID:       v.From.ID,
				AuthorUsername: v.From.Username,
				Text:           v.Text,
				Timestamp:      ts,
			})
		}
	}
	return comments, ignored, nil
}
