package participants

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pulsehq/backend/internal/middleware"
	"github.com/pulsehq/backend/internal/models"
	"github.com/pulsehq/backend/internal/realtime"
	"github.com/pulsehq/backend/pkg/cursor"
	"github.com/pulsehq/backend/pkg/response"
)

// JoinRequest is the body for POST /sessions/:id/join.
type JoinRequest struct {
	ConnectionQuality string `json:"connection_quality"`
}

// RemoveRequest is the body for POST /sessions/:id/participants/:participantId/remove.
type RemoveRequest struct {
	Reason string `json:"reason"`
}

// Handler handles participant HTTP endpoints.
type Handler struct {
	svc *Service
	hub *realtime.Hub
}

// NewHandler creates a participant handler.
func NewHandler(svc *Service, hub *realtime.Hub) *Handler {
	return &Handler{svc: svc, hub: hub}
}

// Join handles POST /sessions/:id/join.
func (h *Handler) Join(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	p, err := h.svc.Join(c.Request.Context(), userID, sessionID, req.ConnectionQuality)
	if err != nil {
		response.Error(c, err)
		return
	}
	if h.hub != nil {
		h.hub.Publish(sessionID, realtime.EventParticipantJoined, gin.H{
			"session_id": sessionID,
			"user_id":    p.UserID,
			"role":       p.Role,
		})
	}
	response.OK(c, p)
}

// Leave handles POST /sessions/:id/leave.
func (h *Handler) Leave(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	if err := h.svc.Leave(c.Request.Context(), userID, sessionID); err != nil {
		response.Error(c, err)
		return
	}
	if h.hub != nil {
		h.hub.Publish(sessionID, realtime.EventParticipantLeft, gin.H{
			"session_id": sessionID,
			"user_id":    userID,
		})
	}
	response.NoContent(c)
}

// CanJoin handles GET /sessions/:id/can-join. It is a read-only probe; a
// positive answer does not reserve a slot.
func (h *Handler) CanJoin(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	result, err := h.svc.CanJoin(c.Request.Context(), userID, sessionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// List handles GET /sessions/:id/participants.
func (h *Handler) List(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	cur, limit, err := cursor.Parse(c.Query("cursor"), c.Query("limit"))
	if err != nil {
		response.Error(c, err)
		return
	}
	activeOnly := c.Query("active") != "false"

	list, hasMore, err := h.svc.List(c.Request.Context(), sessionID, activeOnly, cur, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, response.Page{Items: list, HasMore: hasMore, NextCursor: nextCursor(list, hasMore)})
}

// UpdateStreamState handles PATCH /sessions/:id/stream-state. Callers patch
// their own flags only.
func (h *Handler) UpdateStreamState(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	var patch StreamStatePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	p, err := h.svc.UpdateStreamState(c.Request.Context(), userID, sessionID, patch)
	if err != nil {
		response.Error(c, err)
		return
	}
	if h.hub != nil {
		h.hub.Publish(sessionID, realtime.EventStreamStateChanged, gin.H{
			"session_id":   sessionID,
			"user_id":      p.UserID,
			"stream_state": p.StreamState,
		})
	}
	response.OK(c, p)
}

// Remove handles POST /sessions/:id/participants/:participantId/remove
// (owner only).
func (h *Handler) Remove(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	participantID, err := uuid.Parse(c.Param("participantId"))
	if err != nil {
		response.BadRequest(c, "invalid participant id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	var req RemoveRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	if err := h.svc.Remove(c.Request.Context(), userID, sessionID, participantID, req.Reason); err != nil {
		response.Error(c, err)
		return
	}
	if h.hub != nil {
		h.hub.Publish(sessionID, realtime.EventParticipantRemoved, gin.H{
			"session_id":     sessionID,
			"participant_id": participantID,
			"reason":         req.Reason,
		})
	}
	response.NoContent(c)
}

func nextCursor(list []models.Participant, hasMore bool) string {
	if !hasMore || len(list) == 0 {
		return ""
	}
	last := list[len(list)-1]
	return cursor.Encode(last.CreatedAt, last.ID)
}
