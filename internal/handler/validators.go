package handler

import (
	"sync"

	"telehealth/internal/domain"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var registerOnce sync.Once

// RegisterValidators adds the "media" and "payment_method" tags to gin's validator.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("media", func(fl validator.FieldLevel) bool {
			_, err := domain.ParseMedia(fl.Field().String())
			return err == nil
		})
		_ = v.RegisterValidation("payment_method", func(fl validator.FieldLevel) bool {
			switch fl.Field().String() {
			case domain.PaymentMethodBankTransfer, domain.PaymentMethodMobileMoney:
				return true
			}
			return false
		})
	})
}
