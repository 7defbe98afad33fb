package billing

import (
	"errors"
	"testing"
	"time"

	"telehealth/internal/domain"
)

func TestCompute(t *testing.T) {
	tests := []struct {
		name    string
		elapsed int
		manual  bool
		want    int
	}{
		{"8 minutes manual end", 8, true, 1},
		{"12 minutes manual end", 12, true, 2},
		{"25 minutes manual end", 25, true, 3},
		{"25 minutes auto end", 25, false, 2},
		{"zero elapsed auto end", 0, false, 0},
		{"exact unit boundary", 10, false, 1},
		{"negative elapsed clamps", -5, true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compute(tt.elapsed, tt.manual)
			if got.UnitsToDeduct != tt.want {
				t.Fatalf("UnitsToDeduct = %d, want %d (%+v)", got.UnitsToDeduct, tt.want, got)
			}
			if got.AutoUnits+got.ManualUnit != got.UnitsToDeduct {
				t.Fatalf("units do not add up: %+v", got)
			}
		})
	}
}

func TestShouldAutoEnd(t *testing.T) {
	tests := []struct {
		elapsed   int
		remaining int
		want      bool
	}{
		{15, 3, false},
		{30, 3, false},
		{31, 3, true},
		{35, 3, true},
		{1, 0, true},
		{0, 0, false},
		{5, -2, true},
	}
	for _, tt := range tests {
		if got := ShouldAutoEnd(tt.elapsed, tt.remaining); got != tt.want {
			t.Errorf("ShouldAutoEnd(%d, %d) = %v, want %v", tt.elapsed, tt.remaining, got, tt.want)
		}
	}
}

func TestElapsedMinutes(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	if got := ElapsedMinutes(nil, start); got != 0 {
		t.Fatalf("nil start = %d", got)
	}
	if got := ElapsedMinutes(&start, start.Add(12*time.Minute+59*time.Second)); got != 12 {
		t.Fatalf("elapsed = %d, want 12", got)
	}
	if got := ElapsedMinutes(&start, start.Add(-time.Minute)); got != 0 {
		t.Fatalf("clock skew = %d, want 0", got)
	}
}

func TestRemainingAndNextDeduction(t *testing.T) {
	if got := RemainingMinutes(12, 3); got != 18 {
		t.Fatalf("RemainingMinutes = %d, want 18", got)
	}
	if got := RemainingMinutes(45, 3); got != 0 {
		t.Fatalf("RemainingMinutes overrun = %d, want 0", got)
	}
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	if got := NextDeductionAt(start, 2); !got.Equal(start.Add(30 * time.Minute)) {
		t.Fatalf("NextDeductionAt = %v", got)
	}
}

func TestFeeIsFlatPerMedia(t *testing.T) {
	rates := DefaultRates()
	tests := []struct {
		media    domain.Media
		country  string
		amount   int64
		currency string
	}{
		{domain.MediaText, "Malawi", 4000_00, domain.CurrencyMWK},
		{domain.MediaVoice, "malawi", 5000_00, domain.CurrencyMWK},
		{domain.MediaVideo, "malawi", 6000_00, domain.CurrencyMWK},
		{domain.MediaText, "kenya", 4_00, domain.CurrencyUSD},
		{domain.MediaVideo, "", 6_00, domain.CurrencyUSD},
	}
	for _, tt := range tests {
		fee, err := rates.Fee(tt.media, tt.country)
		if err != nil {
			t.Fatalf("Fee(%s, %s): %v", tt.media, tt.country, err)
		}
		if fee.Amount != tt.amount || fee.Currency != tt.currency {
			t.Errorf("Fee(%s, %s) = %+v, want %d %s", tt.media, tt.country, fee, tt.amount, tt.currency)
		}
	}

	// one episode earns one fee no matter how long it ran
	short := Compute(8, true)
	long := Compute(95, true)
	if short.UnitsToDeduct == long.UnitsToDeduct {
		t.Fatal("expected different quota charges")
	}
	a, _ := rates.Fee(domain.MediaText, "malawi")
	b, _ := rates.Fee(domain.MediaText, "malawi")
	if a != b {
		t.Fatalf("fee changed between episodes: %v vs %v", a, b)
	}
}

func TestFeeUnknownCurrency(t *testing.T) {
	rates := RateTable{domain.CurrencyMWK: {domain.MediaText: 100}}
	if _, err := rates.Fee(domain.MediaText, "ghana"); !errors.Is(err, ErrNoRate) {
		t.Fatalf("missing USD table err = %v", err)
	}
	if _, err := rates.Fee(domain.MediaVideo, "malawi"); !errors.Is(err, ErrNoRate) {
		t.Fatalf("missing video rate err = %v", err)
	}
}

func TestFeeInCurrency(t *testing.T) {
	fee, err := DefaultRates().FeeInCurrency(domain.MediaVoice, domain.CurrencyMWK)
	if err != nil || fee != (Fee{Amount: 5000_00, Currency: domain.CurrencyMWK}) {
		t.Fatalf("fee = %+v, %v", fee, err)
	}
	if _, err := DefaultRates().FeeInCurrency(domain.MediaVoice, "EUR"); !errors.Is(err, ErrNoRate) {
		t.Fatalf("EUR err = %v", err)
	}
}
