package models

import (
	"time"

	"github.com/google/uuid"
)

// ParticipantRole is the role of a user within one session.
type ParticipantRole string

const (
	ParticipantViewer    ParticipantRole = "viewer"
	ParticipantModerator ParticipantRole = "moderator"
	ParticipantAdmin     ParticipantRole = "admin"
)

// Permissions is a participant's stored permission set. It is derived from
// role and session settings at admission or elevation time; checks read it
// directly so an elevation is a single field update.
type Permissions struct {
	CanStream   bool `json:"can_stream"`
	CanModerate bool `json:"can_moderate"`
	CanReact    bool `json:"can_react"`
	CanChat     bool `json:"can_chat"`
}

// StreamState holds a participant's own publishing state.
type StreamState struct {
	HasVideo   bool `json:"has_video"`
	HasAudio   bool `json:"has_audio"`
	IsMuted    bool `json:"is_muted"`
	IsVideoOff bool `json:"is_video_off"`
}

// Participant is one (session, user) membership record. Rejoining reactivates
// the same record; it is never physically deleted while the session exists.
type Participant struct {
	ID                uuid.UUID       `json:"id"`
	SessionID         uuid.UUID       `json:"session_id"`
	UserID            uuid.UUID       `json:"user_id"`
	Role              ParticipantRole `json:"role"`
	Permissions       Permissions     `json:"permissions"`
	StreamState       StreamState     `json:"stream_state"`
	ConnectionQuality string          `json:"connection_quality,omitempty"`
	JoinedAt          time.Time       `json:"joined_at"`
	LeftAt            *time.Time      `json:"left_at,omitempty"`
	IsActive          bool            `json:"is_active"`
	WatchSeconds      int64           `json:"watch_seconds"`
	ReactionsCount    int             `json:"reactions_count"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// ViewerPermissions derives the permission set for a freshly admitted viewer.
func ViewerPermissions(settings SessionSettings) Permissions {
	return Permissions{
		CanStream:   false,
		CanModerate: false,
		CanReact:    settings.AllowReactions,
		CanChat:     settings.AllowChat,
	}
}

// AdminPermissions is the full permission set granted to the session owner.
func AdminPermissions() Permissions {
	return Permissions{CanStream: true, CanModerate: true, CanReact: true, CanChat: true}
}
