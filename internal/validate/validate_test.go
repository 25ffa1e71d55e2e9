package validate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/babababa22003300kaka-bot/eafc232cons/internal/domain"
)

func code(t *testing.T, err error) string {
	t.Helper()
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve), "expected validation error, got %v", err)
	return ve.Code()
}

func TestPhone(t *testing.T) {
	cases := []struct {
		name     string
		in       string
		want     string
		wantCode string
	}{
		{"valid vodafone", "01012345678", "01012345678", ""},
		{"valid etisalat", "01123456789", "01123456789", ""},
		{"valid orange", "01234567890", "01234567890", ""},
		{"valid we", "01512345678", "01512345678", ""},
		{"spaces stripped", "010 1234 5678", "01012345678", ""},
		{"letters", "01o12345678", "", domain.CodeBadPhone},
		{"plus prefix", "+201012345678", "", domain.CodeBadPhone},
		{"too short", "0101234567", "", domain.CodeBadPhoneLength},
		{"too long", "010123456789", "", domain.CodeBadPhoneLength},
		{"bad carrier", "01312345678", "", domain.CodeBadPhonePrefix},
		{"empty", "", "", domain.CodeBadPhone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Phone(tc.in)
			if tc.wantCode == "" {
				require.NoError(t, err)
				require.Equal(t, tc.want, got)
				return
			}
			require.Equal(t, tc.wantCode, code(t, err))
		})
	}
}

func TestPaymentDetails(t *testing.T) {
	t.Run("wallet uses phone rule", func(t *testing.T) {
		got, err := PaymentDetails(domain.PayVodafoneCash, "01012345678")
		require.NoError(t, err)
		require.Equal(t, "01012345678", got)

		_, err = PaymentDetails(domain.PayVodafoneCash, "not a phone")
		require.Equal(t, domain.CodeBadPaymentDetail, code(t, err))
	})

	t.Run("telda wants 16 digits", func(t *testing.T) {
		got, err := PaymentDetails(domain.PayTelda, "1234 5678 9012 3456")
		require.NoError(t, err)
		require.Equal(t, "1234567890123456", got)

		_, err = PaymentDetails(domain.PayTelda, "123456789012345")
		require.Equal(t, domain.CodeBadPaymentDetail, code(t, err))
	})

	t.Run("instapay wants a link", func(t *testing.T) {
		_, err := PaymentDetails(domain.PayInstaPay, "https://ipn.eg/S/someone/instapay/abc123")
		require.NoError(t, err)

		_, err = PaymentDetails(domain.PayInstaPay, "01012345678")
		require.Equal(t, domain.CodeBadPaymentDetail, code(t, err))
	})
}

func TestSaleAmount(t *testing.T) {
	cases := []struct {
		name     string
		in       string
		want     int64
		wantCode string
	}{
		{"lower bound", "50", 50, ""},
		{"upper bound", "20000", 20000, ""},
		{"typical", "900", 900, ""},
		{"spaces stripped", "1 000", 1000, ""},
		{"k shorthand", "100k", 0, domain.CodeBadAmountSymbols},
		{"m shorthand", "1m", 0, domain.CodeBadAmountSymbols},
		{"decimal", "1.5", 0, domain.CodeBadAmountSymbols},
		{"negative", "-100", 0, domain.CodeBadAmountSymbols},
		{"single digit", "9", 0, domain.CodeBadAmountLength},
		{"six digits", "100000", 0, domain.CodeBadAmountLength},
		{"below range", "49", 0, domain.CodeBadAmountRange},
		{"above range", "99999", 0, domain.CodeBadAmountRange},
		{"empty", "", 0, domain.CodeBadAmountSymbols},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := SaleAmount(tc.in)
			if tc.wantCode == "" {
				require.NoError(t, err)
				require.Equal(t, tc.want, got)
				return
			}
			require.Equal(t, tc.wantCode, code(t, err))
		})
	}
}

func TestPrice(t *testing.T) {
	cases := []struct {
		name     string
		in       string
		want     int64
		wantCode string
	}{
		{"plain", "5600", 5600, ""},
		{"comma separated", "5,600", 5600, ""},
		{"lower bound", "1000", 1000, ""},
		{"upper bound", "50000", 50000, ""},
		{"letters", "56oo", 0, domain.CodeBadPriceFormat},
		{"empty", "", 0, domain.CodeBadPriceFormat},
		{"below bound", "999", 0, domain.CodeBadPriceRange},
		{"above bound", "50001", 0, domain.CodeBadPriceRange},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Price(tc.in)
			if tc.wantCode == "" {
				require.NoError(t, err)
				require.Equal(t, tc.want, got)
				return
			}
			require.Equal(t, tc.wantCode, code(t, err))
		})
	}
}
