package billing

import (
	"errors"
	"fmt"
	"strings"

	"telehealth/internal/domain"
)

// Fee is a doctor's flat payment for one session, in minor units of Currency.
type Fee struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// RateTable maps currency -> media -> flat fee in minor units.
type RateTable map[string]map[domain.Media]int64

func DefaultRates() RateTable {
	return RateTable{
		domain.CurrencyMWK: {
			domain.MediaText:  4000_00,
			domain.MediaVoice: 5000_00,
			domain.MediaVideo: 6000_00,
		},
		domain.CurrencyUSD: {
			domain.MediaText:  4_00,
			domain.MediaVoice: 5_00,
			domain.MediaVideo: 6_00,
		},
	}
}

// CurrencyForCountry picks the payout currency from the doctor's country.
func CurrencyForCountry(country string) string {
	if strings.EqualFold(strings.TrimSpace(country), domain.CountryMalawi) {
		return domain.CurrencyMWK
	}
	return domain.CurrencyUSD
}

// ErrNoRate is returned when the table has no fee for a currency and session type.
var ErrNoRate = errors.New("no payment rate")

// Fee prices a session in the currency of the doctor's country.
// It is independent of how many units the patient was charged.
func (t RateTable) Fee(media domain.Media, country string) (Fee, error) {
	return t.FeeInCurrency(media, CurrencyForCountry(country))
}

// FeeInCurrency prices a session in an explicit currency, such as that of an existing wallet.
func (t RateTable) FeeInCurrency(media domain.Media, currency string) (Fee, error) {
	byMedia, ok := t[currency]
	if !ok {
		return Fee{}, fmt.Errorf("%w: no rates for currency %s", ErrNoRate, currency)
	}
	amount, ok := byMedia[media]
	if !ok {
		return Fee{}, fmt.Errorf("%w: no %s rate for session type %s", ErrNoRate, currency, media)
	}
	return Fee{Amount: amount, Currency: currency}, nil
}

// ForCurrency returns the per-media rates of one currency, for wallet responses.
func (t RateTable) ForCurrency(currency string) map[domain.Media]int64 {
	out := make(map[domain.Media]int64, len(domain.AllMedia))
	for m, v := range t[currency] {
		out[m] = v
	}
	return out
}
