package handler

import (
	"errors"
	"net/http"
	"strconv"

	"telehealth/internal/domain"
	"telehealth/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

// errorTable maps service sentinels to HTTP status and a stable machine-readable code.
var errorTable = []errorMapping{
	{service.ErrDoctorBusy, http.StatusConflict, "DOCTOR_BUSY"},
	{service.ErrPatientBusy, http.StatusConflict, "PATIENT_BUSY"},
	{service.ErrDoctorUnavailable, http.StatusUnprocessableEntity, "DOCTOR_UNAVAILABLE"},
	{service.ErrQuotaExhausted, http.StatusUnprocessableEntity, "QUOTA_EXHAUSTED"},
	{service.ErrNoActiveSubscription, http.StatusUnprocessableEntity, "NO_ACTIVE_SUBSCRIPTION"},
	{service.ErrSubscriptionInactive, http.StatusUnprocessableEntity, "SUBSCRIPTION_INACTIVE"},
	{service.ErrInsufficientBalance, http.StatusUnprocessableEntity, "INSUFFICIENT_BALANCE"},
	{service.ErrSessionNotFound, http.StatusNotFound, "SESSION_NOT_FOUND"},
	{service.ErrSessionNotActive, http.StatusConflict, "SESSION_NOT_ACTIVE"},
	{service.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
	{service.ErrResponseDeadlinePassed, http.StatusConflict, "RESPONSE_DEADLINE_PASSED"},
	{service.ErrInvalidStateTransition, http.StatusConflict, "INVALID_STATE_TRANSITION"},
	{service.ErrInvalidSchedule, http.StatusBadRequest, "INVALID_SCHEDULE"},
	{service.ErrInvalidParticipant, http.StatusBadRequest, "INVALID_PARTICIPANT"},
	{service.ErrWalletNotFound, http.StatusNotFound, "WALLET_NOT_FOUND"},
	{service.ErrWithdrawalNotFound, http.StatusNotFound, "WITHDRAWAL_NOT_FOUND"},
	{service.ErrWithdrawalBelowMinimum, http.StatusBadRequest, "BELOW_MINIMUM"},
	{service.ErrWithdrawalAboveMaximum, http.StatusBadRequest, "ABOVE_MAXIMUM"},
	{service.ErrInvalidPaymentMethod, http.StatusBadRequest, "INVALID_PAYMENT_METHOD"},
	{service.ErrMissingPaymentDetails, http.StatusBadRequest, "MISSING_PAYMENT_DETAILS"},
	{service.ErrAppointmentNotFound, http.StatusNotFound, "APPOINTMENT_NOT_FOUND"},
	{service.ErrSlotTaken, http.StatusConflict, "SLOT_TAKEN"},
	{service.ErrInvalidFunding, http.StatusBadRequest, "INVALID_FUNDING"},
	{domain.ErrUnknownValue, http.StatusBadRequest, "INVALID_VALUE"},
}

// respondError writes the mapped response for err. Unmapped errors are logged and hidden.
func respondError(c *gin.Context, err error) {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			c.JSON(m.status, gin.H{"error": err.Error(), "code": m.code})
			return
		}
	}
	_ = c.Error(err)
	logrus.WithError(err).WithField("path", c.FullPath()).Error("unhandled service error")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": "INTERNAL"})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "code": "BAD_REQUEST"})
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		badRequest(c, "invalid id")
		return 0, false
	}
	return uint(id), true
}

func parsePagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}
