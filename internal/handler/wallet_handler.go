package handler

import (
	"net/http"

	"telehealth/internal/middleware"
	"telehealth/internal/service"

	"github.com/gin-gonic/gin"
)

// WalletHandler serves the doctor's own wallet. Doctor only.
type WalletHandler struct {
	wallets     *service.WalletService
	withdrawals *service.WithdrawalService
}

func NewWalletHandler(wallets *service.WalletService, withdrawals *service.WithdrawalService) *WalletHandler {
	return &WalletHandler{wallets: wallets, withdrawals: withdrawals}
}

// GetWallet handles GET /wallet.
func (h *WalletHandler) GetWallet(c *gin.Context) {
	view, err := h.wallets.GetWallet(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Transactions handles GET /wallet/transactions?type=credit|debit.
func (h *WalletHandler) Transactions(c *gin.Context) {
	page, limit := parsePagination(c)
	list, total, err := h.wallets.Transactions(c.Request.Context(), middleware.GetUserID(c), c.Query("type"), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list, "total": total, "page": page, "limit": limit})
}

// EarningsSummary handles GET /wallet/earnings-summary.
func (h *WalletHandler) EarningsSummary(c *gin.Context) {
	sum, err := h.wallets.EarningsSummary(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

// Withdraw handles POST /wallet/withdraw.
func (h *WalletHandler) Withdraw(c *gin.Context) {
	var in service.WithdrawalInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	req, err := h.withdrawals.RequestWithdrawal(c.Request.Context(), middleware.GetUserID(c), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, req)
}

// Withdrawals handles GET /wallet/withdrawals.
func (h *WalletHandler) Withdrawals(c *gin.Context) {
	page, limit := parsePagination(c)
	list, total, err := h.withdrawals.ListForDoctor(c.Request.Context(), middleware.GetUserID(c), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list, "total": total, "page": page, "limit": limit})
}
