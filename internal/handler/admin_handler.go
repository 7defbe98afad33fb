package handler

import (
	"errors"
	"io"
	"net/http"

	"telehealth/internal/middleware"
	"telehealth/internal/service"

	"github.com/gin-gonic/gin"
)

// AdminHandler reviews withdrawal requests. Admin only.
type AdminHandler struct {
	withdrawals *service.WithdrawalService
}

func NewAdminHandler(withdrawals *service.WithdrawalService) *AdminHandler {
	return &AdminHandler{withdrawals: withdrawals}
}

// ListWithdrawals handles GET /admin/withdrawal-requests?status=.
func (h *AdminHandler) ListWithdrawals(c *gin.Context) {
	page, limit := parsePagination(c)
	list, total, err := h.withdrawals.List(c.Request.Context(), c.Query("status"), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list, "total": total, "page": page, "limit": limit})
}

// WithdrawalStatistics handles GET /admin/withdrawal-requests/statistics.
func (h *AdminHandler) WithdrawalStatistics(c *gin.Context) {
	stats, err := h.withdrawals.Statistics(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ApproveWithdrawal handles POST /admin/withdrawal-requests/:id/approve.
func (h *AdminHandler) ApproveWithdrawal(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	req, err := h.withdrawals.Approve(c.Request.Context(), middleware.GetUserID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// RejectWithdrawal handles POST /admin/withdrawal-requests/:id/reject.
func (h *AdminHandler) RejectWithdrawal(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var body struct {
		Reason string `json:"reason" binding:"required,max=500"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err.Error())
		return
	}
	req, err := h.withdrawals.Reject(c.Request.Context(), middleware.GetUserID(c), id, body.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// MarkWithdrawalPaid handles POST /admin/withdrawal-requests/:id/mark-as-paid.
func (h *AdminHandler) MarkWithdrawalPaid(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var body struct {
		PaymentReference string `json:"payment_reference" binding:"max=100"`
	}
	// The body is optional here.
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err.Error())
		return
	}
	req, err := h.withdrawals.MarkAsPaid(c.Request.Context(), middleware.GetUserID(c), id, body.PaymentReference)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}
