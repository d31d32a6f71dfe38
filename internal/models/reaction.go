package models

import (
	"time"

	"github.com/google/uuid"
)

// ReactionPalette is the closed set of accepted emoji.
var ReactionPalette = []string{"👍", "❤️", "🔥", "👏", "😂", "😮", "🎉", "💯"}

var paletteSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(ReactionPalette))
	for _, e := range ReactionPalette {
		m[e] = struct{}{}
	}
	return m
}()

// ValidEmoji reports whether e belongs to the reaction palette.
func ValidEmoji(e string) bool {
	_, ok := paletteSet[e]
	return ok
}

// Reaction is one immutable emoji event. It is never updated, only
// soft-deleted for moderation takedown.
type Reaction struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	UserID    uuid.UUID `json:"user_id"`
	Emoji     string    `json:"emoji"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// ReactionCount is one row of the per-session emoji summary.
type ReactionCount struct {
	Emoji string `json:"emoji"`
	Count int    `json:"count"`
}
