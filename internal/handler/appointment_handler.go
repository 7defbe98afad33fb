package handler

import (
	"net/http"
	"time"

	"telehealth/internal/domain"
	"telehealth/internal/middleware"
	"telehealth/internal/service"

	"github.com/gin-gonic/gin"
)

type AppointmentHandler struct {
	appointments *service.AppointmentService
}

func NewAppointmentHandler(appointments *service.AppointmentService) *AppointmentHandler {
	return &AppointmentHandler{appointments: appointments}
}

// Book handles POST /appointments. Patient only.
func (h *AppointmentHandler) Book(c *gin.Context) {
	var req struct {
		DoctorID        uint      `json:"doctor_id" binding:"required"`
		AppointmentDate time.Time `json:"appointment_date" binding:"required"`
		ConsultMethod   string    `json:"consultation_method" binding:"required,media"`
		Reason          string    `json:"reason" binding:"max=500"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	media, _ := domain.ParseMedia(req.ConsultMethod)
	appt, err := h.appointments.Book(c.Request.Context(), middleware.GetUserID(c), req.DoctorID, req.AppointmentDate.UTC(), media, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, appt)
}

// Cancel handles POST /appointments/:id/cancel.
func (h *AppointmentHandler) Cancel(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	appt, err := h.appointments.Cancel(c.Request.Context(), middleware.GetUserID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, appt)
}

// List handles GET /appointments?status=.
func (h *AppointmentHandler) List(c *gin.Context) {
	page, limit := parsePagination(c)
	list, total, err := h.appointments.ListForUser(c.Request.Context(), middleware.GetUserID(c), c.Query("status"), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list, "total": total, "page": page, "limit": limit})
}
