package reddit

import (
	"time"

	"cointipd/internal/models"
)

// thingListing is the wire shape of Reddit's Listing envelope, trimmed to
// the fields the bot reads.
type thingListing struct {
	Data struct {
		Children []struct {
			Kind string `json:"kind"`
			Data struct {
				Name       string  `json:"name"`
				Id         string  `json:"id"`
				Author     string  `json:"author"`
				Body       string  `json:"body"`
				Permalink  string  `json:"permalink"`
				Subreddit  string  `json:"subreddit"`
				ParentId   string  `json:"parent_id"`
				CreatedUTC float64 `json:"created_utc"`
				WasComment bool    `json:"was_comment"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

func (l *thingListing) messages() []models.Message {
	messages := make([]models.Message, 0, len(l.Data.Children))
	for _, child := range l.Data.Children {
		d := child.Data
		messages = append(messages, models.Message{
			Id:         d.Name,
			Author:     d.Author,
			Body:       d.Body,
			Permalink:  d.Permalink,
			Subreddit:  d.Subreddit,
			ParentId:   d.ParentId,
			CreatedAt:  time.Unix(int64(d.CreatedUTC), 0).UTC(),
			IsComment:  child.Kind == "t1",
			WasComment: d.WasComment,
		})
	}
	return messages
}
