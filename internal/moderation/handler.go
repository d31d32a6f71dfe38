package moderation

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pulsehq/backend/internal/middleware"
	"github.com/pulsehq/backend/internal/models"
	"github.com/pulsehq/backend/internal/realtime"
	"github.com/pulsehq/backend/pkg/response"
)

// CreateRequest is the body for POST /sessions/:id/moderation-requests.
type CreateRequest struct {
	Video   bool   `json:"video"`
	Audio   bool   `json:"audio"`
	Message string `json:"message"`
}

// ReviewRequest is the body for POST /moderation-requests/:id/review.
type ReviewRequest struct {
	Decision string `json:"decision" binding:"required"`
	Message  string `json:"message"`
}

// Handler handles moderation request HTTP endpoints.
type Handler struct {
	svc *Service
	hub *realtime.Hub
}

// NewHandler creates a moderation handler.
func NewHandler(svc *Service, hub *realtime.Hub) *Handler {
	return &Handler{svc: svc, hub: hub}
}

// Create handles POST /sessions/:id/moderation-requests.
func (h *Handler) Create(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	mr, err := h.svc.Request(c.Request.Context(), userID, sessionID,
		models.RequestedPermissions{Video: req.Video, Audio: req.Audio}, req.Message)
	if err != nil {
		response.Error(c, err)
		return
	}
	if h.hub != nil {
		h.hub.Publish(sessionID, realtime.EventModerationRequest, gin.H{
			"session_id": sessionID,
			"request_id": mr.ID,
			"user_id":    mr.UserID,
			"requested":  mr.Requested,
		})
	}
	response.Created(c, mr)
}

// ListPending handles GET /sessions/:id/moderation-requests (owner only).
func (h *Handler) ListPending(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	list, err := h.svc.ListPending(c.Request.Context(), userID, sessionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// Review handles POST /moderation-requests/:id/review (session owner only).
func (h *Handler) Review(c *gin.Context) {
	requestID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid request id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	mr, err := h.svc.Review(c.Request.Context(), userID, requestID,
		models.ModerationStatus(req.Decision), req.Message)
	if err != nil {
		response.Error(c, err)
		return
	}
	if h.hub != nil {
		h.hub.Publish(mr.SessionID, realtime.EventModerationReviewed, gin.H{
			"session_id": mr.SessionID,
			"request_id": mr.ID,
			"user_id":    mr.UserID,
			"status":     mr.Status,
		})
	}
	response.OK(c, mr)
}
