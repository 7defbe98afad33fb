package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"telehealth/internal/domain"
	"telehealth/internal/service"

	"github.com/gin-gonic/gin"
)

func TestRespondError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"doctor busy", service.ErrDoctorBusy, http.StatusConflict, "DOCTOR_BUSY"},
		{"wrapped quota", fmt.Errorf("start: %w", service.ErrQuotaExhausted), http.StatusUnprocessableEntity, "QUOTA_EXHAUSTED"},
		{"balance", service.ErrInsufficientBalance, http.StatusUnprocessableEntity, "INSUFFICIENT_BALANCE"},
		{"not found", service.ErrSessionNotFound, http.StatusNotFound, "SESSION_NOT_FOUND"},
		{"parse", func() error { _, err := domain.ParseSessionStatus("paused"); return err }(), http.StatusBadRequest, "INVALID_VALUE"},
		{"unknown", errors.New("connection reset"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			respondError(c, tt.err)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			var body map[string]string
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["code"] != tt.code {
				t.Errorf("code = %q, want %q", body["code"], tt.code)
			}
			if tt.status == http.StatusInternalServerError && body["error"] != "internal error" {
				t.Errorf("internal error leaked: %q", body["error"])
			}
		})
	}
}

func TestParseID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		param string
		want  uint
		ok    bool
	}{
		{"12", 12, true},
		{"0", 0, false},
		{"-3", 0, false},
		{"abc", 0, false},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Params = gin.Params{{Key: "id", Value: tt.param}}
		got, ok := parseID(c)
		if got != tt.want || ok != tt.ok {
			t.Errorf("parseID(%q) = %d, %v", tt.param, got, ok)
		}
		if !ok && w.Code != http.StatusBadRequest {
			t.Errorf("parseID(%q) status = %d", tt.param, w.Code)
		}
	}
}

func TestValidators(t *testing.T) {
	gin.SetMode(gin.TestMode)
	RegisterValidators()
	r := gin.New()
	r.POST("/", func(c *gin.Context) {
		var req struct {
			Media  string `json:"media" binding:"required,media"`
			Method string `json:"method" binding:"required,payment_method"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Status(http.StatusBadRequest)
			return
		}
		c.Status(http.StatusOK)
	})
	tests := []struct {
		body string
		want int
	}{
		{`{"media":"video","method":"bank_transfer"}`, http.StatusOK},
		{`{"media":"audio","method":"mobile_money"}`, http.StatusOK},
		{`{"media":"fax","method":"bank_transfer"}`, http.StatusBadRequest},
		{`{"media":"text","method":"cash"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/", stringsReader(tt.body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)
		if w.Code != tt.want {
			t.Errorf("%s = %d, want %d", tt.body, w.Code, tt.want)
		}
	}
}
