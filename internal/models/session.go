package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of a live session.
type SessionStatus string

const (
	SessionScheduled SessionStatus = "scheduled"
	SessionLive      SessionStatus = "live"
	SessionEnded     SessionStatus = "ended"
	SessionCancelled SessionStatus = "cancelled"
)

// Session participant-count bounds.
const (
	MinSessionParticipants = 1
	MaxSessionParticipants = 100
)

// SessionSettings control what admitted participants may do. Permissions are
// derived from these at admission time, not re-read on every check.
type SessionSettings struct {
	AllowReactions     bool `json:"allow_reactions"`
	AllowChat          bool `json:"allow_chat"`
	ModerationRequired bool `json:"moderation_required"`
	RecordSession      bool `json:"record_session"`
}

// SessionStats holds cumulative per-session statistics.
type SessionStats struct {
	TotalViews       int   `json:"total_views"`
	PeakViewers      int   `json:"peak_viewers"`
	TotalReactions   int   `json:"total_reactions"`
	AverageWatchTime int64 `json:"average_watch_time"` // seconds
}

// Session is a single live-broadcast room owned by one community admin.
type Session struct {
	ID                  uuid.UUID       `json:"id"`
	CommunityID         uuid.UUID       `json:"community_id"`
	OwnerID             uuid.UUID       `json:"owner_id"`
	Title               string          `json:"title"`
	Description         string          `json:"description"`
	Status              SessionStatus   `json:"status"`
	ScheduledStartTime  *time.Time      `json:"scheduled_start_time,omitempty"`
	ActualStartTime     *time.Time      `json:"actual_start_time,omitempty"`
	EndTime             *time.Time      `json:"end_time,omitempty"`
	MaxParticipants     int             `json:"max_participants"`
	CurrentParticipants int             `json:"current_participants"`
	Settings            SessionSettings `json:"settings"`
	StreamKey           string          `json:"-"` // opaque credential, owner-only
	StreamURL           string          `json:"stream_url,omitempty"`
	Stats               SessionStats    `json:"stats"`
	IsActive            bool            `json:"is_active"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// IsTerminal reports whether the session reached a terminal lifecycle state.
func (s *Session) IsTerminal() bool {
	return s.Status == SessionEnded || s.Status == SessionCancelled
}
