package models

import "time"

// Message is an inbound direct message or public comment from the platform.
type Message struct {
	Id        string
	Author    string
	Body      string
	Permalink string
	Subreddit string
	CreatedAt time.Time

	// IsComment distinguishes public comments (tip grammar, parent-author
	// fallback) from direct messages (register/withdraw grammar).
	IsComment bool
	// ParentId is the platform id of the parent comment or post, set for
	// comments only.
	ParentId string
	// WasComment marks inbox items that are replies to the bot's own
	// comments; those are skipped.
	WasComment bool
}

// Origin returns the ledger origin reference for this message.
func (m Message) Origin() OriginRef {
	return OriginRef{MessageId: m.Id, Permalink: m.Permalink}
}
