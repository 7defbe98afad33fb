package handler

import (
	"net/http"
	"time"

	"telehealth/internal/domain"
	"telehealth/internal/middleware"
	"telehealth/internal/service"

	"github.com/gin-gonic/gin"
)

type SessionHandler struct {
	sessions *service.SessionService
}

func NewSessionHandler(sessions *service.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

type startSessionRequest struct {
	DoctorID    uint   `json:"doctor_id" binding:"required"`
	SessionType string `json:"session_type" binding:"required,media"`
}

type scheduleSessionRequest struct {
	DoctorID    uint      `json:"doctor_id" binding:"required"`
	SessionType string    `json:"session_type" binding:"required,media"`
	ScheduledAt time.Time `json:"scheduled_at" binding:"required"`
}

// endSessionResponse flattens the settlement result and surfaces partial failures as warnings.
type endSessionResponse struct {
	*service.SessionEndResult
	Warnings []string `json:"warnings,omitempty"`
}

// Start handles POST /sessions. Patient only.
func (h *SessionHandler) Start(c *gin.Context) {
	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	media, _ := domain.ParseMedia(req.SessionType)
	res, err := h.sessions.Start(c.Request.Context(), middleware.GetUserID(c), req.DoctorID, media)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"session_id": res.Session.ID,
		"status":     res.Session.Status,
		"doctor": gin.H{
			"id":   res.Doctor.ID,
			"name": res.Doctor.FullName(),
		},
		"session_info": res.Info,
	})
}

// Schedule handles POST /sessions/schedule. Patient only.
func (h *SessionHandler) Schedule(c *gin.Context) {
	var req scheduleSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	media, _ := domain.ParseMedia(req.SessionType)
	sess, err := h.sessions.Schedule(c.Request.Context(), middleware.GetUserID(c), req.DoctorID, req.ScheduledAt.UTC(), media)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

// Accept handles POST /sessions/:id/accept. Doctor only.
func (h *SessionHandler) Accept(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	sess, err := h.sessions.Accept(c.Request.Context(), middleware.GetUserID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess, "session_info": h.sessions.Info(sess)})
}

// Cancel handles POST /sessions/:id/cancel.
func (h *SessionHandler) Cancel(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	sess, err := h.sessions.Cancel(c.Request.Context(), middleware.GetUserID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// End handles POST /sessions/:id/end. Either participant may end; the result is 200
// even when one side failed to settle, with the failures listed under warnings.
func (h *SessionHandler) End(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	res, err := h.sessions.End(c.Request.Context(), middleware.GetUserID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	resp := endSessionResponse{SessionEndResult: res}
	if len(res.Errors) > 0 {
		resp.Warnings = res.Errors
	}
	c.JSON(http.StatusOK, resp)
}

// Activity handles POST /sessions/:id/activity.
func (h *SessionHandler) Activity(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.sessions.RecordActivity(c.Request.Context(), middleware.GetUserID(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Get handles GET /sessions/:id.
func (h *SessionHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	sess, info, err := h.sessions.Get(c.Request.Context(), middleware.GetUserID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess, "session_info": info})
}

// List handles GET /sessions?status=&page=&limit=.
func (h *SessionHandler) List(c *gin.Context) {
	page, limit := parsePagination(c)
	list, total, err := h.sessions.ListForUser(c.Request.Context(), middleware.GetUserID(c), c.Query("status"), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list, "total": total, "page": page, "limit": limit})
}

// SetAvailability handles PUT /doctors/me/availability. Doctor only.
func (h *SessionHandler) SetAvailability(c *gin.Context) {
	var body struct {
		Online *bool `json:"online" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.sessions.SetAvailability(c.Request.Context(), middleware.GetUserID(c), *body.Online); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"online": *body.Online})
}
