// Package validate checks user-typed input before any flow state or
// storage is touched. Each check distinguishes its rejection reasons so
// flows can answer with the matching hint.
package validate

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/babababa22003300kaka-bot/eafc232cons/internal/domain"
)

var (
	phoneRe    = regexp.MustCompile(`^01[0125][0-9]{8}$`)
	digitsRe   = regexp.MustCompile(`^[0-9]+$`)
	teldaRe    = regexp.MustCompile(`^[0-9]{16}$`)
	instapayRe = regexp.MustCompile(`^https?://(www\.)?ipn\.eg/|instapay`)
)

// Phone validates an Egyptian mobile number. Spaces are stripped before
// matching; non-digit content and wrong length are rejected separately.
func Phone(raw string) (string, error) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), " ", "")
	if s == "" || !digitsRe.MatchString(s) {
		return "", domain.NewValidationError("phone", "must contain digits only", domain.CodeBadPhone)
	}
	if len(s) != 11 {
		return "", domain.NewValidationError("phone", "must be 11 digits", domain.CodeBadPhoneLength)
	}
	if !phoneRe.MatchString(s) {
		return "", domain.NewValidationError("phone", "must start with 010, 011, 012 or 015", domain.CodeBadPhonePrefix)
	}
	return s, nil
}

// PaymentDetails validates the details field for the chosen method: mobile
// wallets reuse the phone rule, Telda wants a 16-digit card number,
// InstaPay wants a payment link.
func PaymentDetails(method domain.PaymentMethod, raw string) (string, error) {
	s := strings.TrimSpace(raw)
	switch method {
	case domain.PayTelda:
		card := strings.ReplaceAll(s, " ", "")
		if !teldaRe.MatchString(card) {
			return "", domain.NewValidationError("payment_details", "telda card must be 16 digits", domain.CodeBadPaymentDetail)
		}
		return card, nil
	case domain.PayInstaPay:
		if !instapayRe.MatchString(strings.ToLower(s)) {
			return "", domain.NewValidationError("payment_details", "must be an instapay link", domain.CodeBadPaymentDetail)
		}
		return s, nil
	default:
		phone, err := Phone(s)
		if err != nil {
			return "", domain.NewValidationError("payment_details", "wallet number must be a valid mobile number", domain.CodeBadPaymentDetail)
		}
		return phone, nil
	}
}

// SaleAmount validates a coin amount entered in thousands. Three distinct
// rejections: non-digit content (including k/m shorthand), digit count
// outside 2..5, and value outside the accepted range.
func SaleAmount(raw string) (int64, error) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), " ", "")
	if s == "" || !digitsRe.MatchString(s) {
		return 0, domain.NewValidationError("amount", "digits only, no letters or symbols", domain.CodeBadAmountSymbols)
	}
	if len(s) < 2 || len(s) > 5 {
		return 0, domain.NewValidationError("amount", "must be 2 to 5 digits", domain.CodeBadAmountLength)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, domain.NewValidationError("amount", "digits only, no letters or symbols", domain.CodeBadAmountSymbols)
	}
	if n < domain.MinSaleAmountK || n > domain.MaxSaleAmountK {
		return 0, domain.NewValidationError("amount", "must be between 50 and 20000", domain.CodeBadAmountRange)
	}
	return n, nil
}

// Price validates an admin-entered catalog price. Commas and spaces are
// stripped; format and bounds are rejected separately.
func Price(raw string) (int64, error) {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" || !digitsRe.MatchString(s) {
		return 0, domain.NewValidationError("price", "digits only", domain.CodeBadPriceFormat)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, domain.NewValidationError("price", "digits only", domain.CodeBadPriceFormat)
	}
	if n < domain.MinPrice || n > domain.MaxPrice {
		return 0, domain.NewValidationError("price", "must be between 1000 and 50000", domain.CodeBadPriceRange)
	}
	return n, nil
}
