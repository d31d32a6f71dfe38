package sessions

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pulsehq/backend/internal/middleware"
	"github.com/pulsehq/backend/internal/models"
	"github.com/pulsehq/backend/internal/realtime"
	"github.com/pulsehq/backend/pkg/cursor"
	"github.com/pulsehq/backend/pkg/response"
)

// CreateRequest is the body for POST /sessions.
type CreateRequest struct {
	CommunityID        string                  `json:"community_id" binding:"required,uuid"`
	Title              string                  `json:"title" binding:"required"`
	Description        string                  `json:"description"`
	ScheduledStartTime *string                 `json:"scheduled_start_time"`
	MaxParticipants    int                     `json:"max_participants"`
	Settings           *models.SessionSettings `json:"settings"`
}

// UpdateRequest is the body for PATCH /sessions/:id.
type UpdateRequest struct {
	Title              *string `json:"title"`
	Description        *string `json:"description"`
	ScheduledStartTime *string `json:"scheduled_start_time"`
	MaxParticipants    *int    `json:"max_participants"`
	AllowReactions     *bool   `json:"allow_reactions"`
	AllowChat          *bool   `json:"allow_chat"`
	ModerationRequired *bool   `json:"moderation_required"`
	RecordSession      *bool   `json:"record_session"`
}

// Handler handles session lifecycle HTTP endpoints.
type Handler struct {
	svc *Service
	hub *realtime.Hub
}

// NewHandler creates a session handler.
func NewHandler(svc *Service, hub *realtime.Hub) *Handler {
	return &Handler{svc: svc, hub: hub}
}

// Create handles POST /sessions.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	communityID, err := uuid.Parse(req.CommunityID)
	if err != nil {
		response.BadRequest(c, "invalid community id")
		return
	}

	in := CreateInput{
		CommunityID:     communityID,
		Title:           req.Title,
		Description:     req.Description,
		MaxParticipants: req.MaxParticipants,
	}
	if req.ScheduledStartTime != nil {
		t, err := time.Parse(time.RFC3339, *req.ScheduledStartTime)
		if err != nil {
			response.BadRequest(c, "invalid scheduled_start_time")
			return
		}
		in.ScheduledStartTime = &t
	}
	if req.Settings != nil {
		in.Settings = *req.Settings
	} else {
		in.Settings = models.SessionSettings{AllowReactions: true, AllowChat: true}
	}

	session, err := h.svc.Create(c.Request.Context(), userID, in)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// GetByID handles GET /sessions/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	session, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, session)
}

// ListMine handles GET /sessions (the caller's own sessions).
func (h *Handler) ListMine(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	cur, limit, err := cursor.Parse(c.Query("cursor"), c.Query("limit"))
	if err != nil {
		response.Error(c, err)
		return
	}
	list, hasMore, err := h.svc.ListByOwner(c.Request.Context(), userID, cur, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, response.Page{Items: list, HasMore: hasMore, NextCursor: nextCursor(list, hasMore)})
}

// ListAll handles GET /admin/sessions (platform admins only).
func (h *Handler) ListAll(c *gin.Context) {
	cur, limit, err := cursor.Parse(c.Query("cursor"), c.Query("limit"))
	if err != nil {
		response.Error(c, err)
		return
	}
	list, hasMore, err := h.svc.ListAll(c.Request.Context(), cur, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, response.Page{Items: list, HasMore: hasMore, NextCursor: nextCursor(list, hasMore)})
}

// ListByCommunity handles GET /communities/:id/sessions.
func (h *Handler) ListByCommunity(c *gin.Context) {
	communityID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid community id")
		return
	}
	cur, limit, err := cursor.Parse(c.Query("cursor"), c.Query("limit"))
	if err != nil {
		response.Error(c, err)
		return
	}
	list, hasMore, err := h.svc.ListByCommunity(c.Request.Context(), communityID, cur, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, response.Page{Items: list, HasMore: hasMore, NextCursor: nextCursor(list, hasMore)})
}

// Update handles PATCH /sessions/:id (owner only).
func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	patch := SessionPatch{
		Title:              req.Title,
		Description:        req.Description,
		MaxParticipants:    req.MaxParticipants,
		AllowReactions:     req.AllowReactions,
		AllowChat:          req.AllowChat,
		ModerationRequired: req.ModerationRequired,
		RecordSession:      req.RecordSession,
	}
	if req.ScheduledStartTime != nil {
		t, err := time.Parse(time.RFC3339, *req.ScheduledStartTime)
		if err != nil {
			response.BadRequest(c, "invalid scheduled_start_time")
			return
		}
		patch.ScheduledStartTime = &t
	}

	session, err := h.svc.Update(c.Request.Context(), userID, id, patch)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, session)
}

// Start handles POST /sessions/:id/start (owner only).
func (h *Handler) Start(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	session, err := h.svc.Start(c.Request.Context(), userID, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	if h.hub != nil {
		h.hub.Publish(session.ID, realtime.EventSessionStarted, gin.H{
			"session_id": session.ID,
			"stream_url": session.StreamURL,
			"started_at": session.ActualStartTime,
		})
	}
	response.OK(c, session)
}

// End handles POST /sessions/:id/end (owner only).
func (h *Handler) End(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	session, err := h.svc.End(c.Request.Context(), userID, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	if h.hub != nil {
		h.hub.Publish(session.ID, realtime.EventSessionEnded, gin.H{
			"session_id": session.ID,
			"ended_at":   session.EndTime,
		})
	}
	response.OK(c, session)
}

// Delete handles DELETE /sessions/:id (owner only, not while live).
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	if err := h.svc.Delete(c.Request.Context(), userID, id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func nextCursor(list []models.Session, hasMore bool) string {
	if !hasMore || len(list) == 0 {
		return ""
	}
	last := list[len(list)-1]
	return cursor.Encode(last.CreatedAt, last.ID)
}
