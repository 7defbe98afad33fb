package config

import (
	"testing"
	"time"

	"telehealth/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("DOCTOR_RESPONSE_WINDOW", "")
	cfg := Load()
	if cfg.Server.Port != "8099" {
		t.Errorf("port = %q", cfg.Server.Port)
	}
	if cfg.Billing.DoctorResponseWindow != 90*time.Second {
		t.Errorf("response window = %v", cfg.Billing.DoctorResponseWindow)
	}
	if cfg.Billing.MinUnitsToStart != 1 {
		t.Errorf("min units = %d", cfg.Billing.MinUnitsToStart)
	}
	if cfg.Scheduler.AutoDeductionSpec != "@every 10m" {
		t.Errorf("auto deduction spec = %q", cfg.Scheduler.AutoDeductionSpec)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("RATE_MWK_TEXT", "450000")
	t.Setenv("BILLING_MIN_UNITS_TO_START", "0")
	t.Setenv("SESSION_INACTIVITY_WINDOW", "5m")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("WITHDRAWAL_MIN_AMOUNT", "not-a-number")
	cfg := Load()
	if got := cfg.Billing.Rates[domain.CurrencyMWK][domain.MediaText]; got != 450000 {
		t.Errorf("MWK text rate = %d", got)
	}
	if got := cfg.Billing.Rates[domain.CurrencyMWK][domain.MediaVideo]; got != 6000_00 {
		t.Errorf("MWK video rate = %d", got)
	}
	if cfg.Billing.MinUnitsToStart != 0 {
		t.Errorf("min units = %d", cfg.Billing.MinUnitsToStart)
	}
	if cfg.Billing.InactivityWindow != 5*time.Minute {
		t.Errorf("inactivity = %v", cfg.Billing.InactivityWindow)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://b.example" {
		t.Errorf("cors = %v", cfg.Server.CORSOrigins)
	}
	if cfg.Withdrawal.MinAmount != 1000_00 {
		t.Errorf("bad env should fall back to default, got %d", cfg.Withdrawal.MinAmount)
	}
}
