package reactions

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pulsehq/backend/internal/middleware"
	"github.com/pulsehq/backend/internal/models"
	"github.com/pulsehq/backend/internal/realtime"
	"github.com/pulsehq/backend/pkg/cursor"
	"github.com/pulsehq/backend/pkg/response"
)

// ReactRequest is the body for POST /sessions/:id/reactions.
type ReactRequest struct {
	Emoji string `json:"emoji" binding:"required"`
}

// Handler handles reaction HTTP endpoints.
type Handler struct {
	svc *Service
	hub *realtime.Hub
}

// NewHandler creates a reaction handler.
func NewHandler(svc *Service, hub *realtime.Hub) *Handler {
	return &Handler{svc: svc, hub: hub}
}

// React handles POST /sessions/:id/reactions.
func (h *Handler) React(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	var req ReactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	r, err := h.svc.React(c.Request.Context(), userID, sessionID, req.Emoji)
	if err != nil {
		response.Error(c, err)
		return
	}
	if h.hub != nil {
		h.hub.Publish(sessionID, realtime.EventReactionAdded, gin.H{
			"session_id": sessionID,
			"user_id":    r.UserID,
			"emoji":      r.Emoji,
		})
	}
	response.Created(c, r)
}

// Summary handles GET /sessions/:id/reactions/summary.
func (h *Handler) Summary(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	counts, err := h.svc.Summarize(c.Request.Context(), sessionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, counts)
}

// List handles GET /sessions/:id/reactions.
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
	list, hasMore, err := h.svc.List(c.Request.Context(), sessionID, cur, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, response.Page{Items: list, HasMore: hasMore, NextCursor: nextCursor(list, hasMore)})
}

// Remove handles DELETE /sessions/:id/reactions/:reactionId (owner or
// moderator).
func (h *Handler) Remove(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	reactionID, err := uuid.Parse(c.Param("reactionId"))
	if err != nil {
		response.BadRequest(c, "invalid reaction id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	if err := h.svc.Remove(c.Request.Context(), userID, sessionID, reactionID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func nextCursor(list []models.Reaction, hasMore bool) string {
	if !hasMore || len(list) == 0 {
		return ""
	}
	last := list[len(list)-1]
	return cursor.Encode(last.CreatedAt, last.ID)
}
