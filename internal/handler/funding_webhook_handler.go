package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"telehealth/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/sirupsen/logrus"
)

const maxWebhookBody = 64 << 10

// FundingWebhookHandler receives the "subscription funded" effect from the payment service
// once a gateway has confirmed the charge.
type FundingWebhookHandler struct {
	funding *service.FundingService
	secret  string
}

func NewFundingWebhookHandler(funding *service.FundingService, secret string) *FundingWebhookHandler {
	return &FundingWebhookHandler{funding: funding, secret: secret}
}

// Handle handles POST /webhooks/subscription-funded. When a secret is configured the body
// must carry a hex HMAC-SHA256 in X-Webhook-Signature.
func (h *FundingWebhookHandler) Handle(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		badRequest(c, "invalid body")
		return
	}
	if h.secret != "" && !h.verifySignature(body, c.GetHeader("X-Webhook-Signature")) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature", "code": "INVALID_SIGNATURE"})
		return
	}
	var in service.FundingInput
	if err := json.Unmarshal(body, &in); err != nil {
		badRequest(c, "invalid json")
		return
	}
	if err := binding.Validator.ValidateStruct(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	sub, replayed, err := h.funding.FundSubscription(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	logrus.WithFields(logrus.Fields{
		"patient_id":             in.PatientID,
		"payment_transaction_id": in.PaymentTransactionID,
		"replayed":               replayed,
	}).Info("subscription funding received")
	c.JSON(http.StatusOK, gin.H{"received": true, "replayed": replayed, "subscription": sub})
}

func (h *FundingWebhookHandler) verifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}
