package models

import (
	"time"

	"github.com/google/uuid"
)

// Community is a membership scope for sessions. The wider community platform
// owns these records; this subsystem only reads them.
type Community struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	OwnerID   uuid.UUID `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}

// CommunityRole is a user's role within a community.
type CommunityRole string

const (
	CommunityAdmin     CommunityRole = "admin"
	CommunityModerator CommunityRole = "moderator"
	CommunityMember    CommunityRole = "member"
)

// Member links a user to a community.
type Member struct {
	CommunityID uuid.UUID     `json:"community_id"`
	UserID      uuid.UUID     `json:"user_id"`
	Role        CommunityRole `json:"role"`
	JoinedAt    time.Time     `json:"joined_at"`
}
