package models

import (
	"time"

	"github.com/google/uuid"
)

// ModerationStatus is the review state of an elevation request.
type ModerationStatus string

const (
	ModerationPending  ModerationStatus = "pending"
	ModerationApproved ModerationStatus = "approved"
	ModerationRejected ModerationStatus = "rejected"
)

// ModerationRequestTTL is the fixed window in which a request is actionable.
const ModerationRequestTTL = 30 * time.Minute

// RequestedPermissions is what the viewer asks to publish.
type RequestedPermissions struct {
	Video bool `json:"video"`
	Audio bool `json:"audio"`
}

// ModerationRequest is a time-boxed ask by a viewer for moderator/streaming
// privileges. Expiry is passive: a pending request past ExpiresAt is never
// actionable, whether or not it was swept.
type ModerationRequest struct {
	ID            uuid.UUID            `json:"id"`
	SessionID     uuid.UUID            `json:"session_id"`
	UserID        uuid.UUID            `json:"user_id"`
	Requested     RequestedPermissions `json:"requested_permissions"`
	Message       string               `json:"message,omitempty"`
	Status        ModerationStatus     `json:"status"`
	ReviewedBy    *uuid.UUID           `json:"reviewed_by,omitempty"`
	ReviewedAt    *time.Time           `json:"reviewed_at,omitempty"`
	ReviewMessage string               `json:"review_message,omitempty"`
	ExpiresAt     time.Time            `json:"expires_at"`
	IsActive      bool                 `json:"is_active"`
	CreatedAt     time.Time            `json:"created_at"`
}

// Expired reports whether the request is past its review window.
func (m *ModerationRequest) Expired(now time.Time) bool {
	return !now.Before(m.ExpiresAt)
}

// ApprovedPermissions derives the permission set granted on approval.
func (r RequestedPermissions) ApprovedPermissions() Permissions {
	return Permissions{
		CanStream:   r.Video || r.Audio,
		CanModerate: true,
		CanReact:    true,
		CanChat:     true,
	}
}
