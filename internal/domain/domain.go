// Package domain holds the catalog enums, user model, and typed errors
// shared by flows, services, and storage.
package domain

import "time"

// Platform is a gaming platform the bot trades coins for.
type Platform string

const (
	PlatformPlayStation Platform = "playstation"
	PlatformXbox        Platform = "xbox"
	PlatformPC          Platform = "pc"
)

// Platforms lists every platform in menu order.
func Platforms() []Platform {
	return []Platform{PlatformPlayStation, PlatformXbox, PlatformPC}
}

// ParsePlatform validates a raw platform value.
func ParsePlatform(raw string) (Platform, error) {
	switch Platform(raw) {
	case PlatformPlayStation, PlatformXbox, PlatformPC:
		return Platform(raw), nil
	}
	return "", &ValidationError{Field: "platform", Reason: "unknown platform", code: CodeBadPlatform}
}

// Label returns the user-facing platform name.
func (p Platform) Label() string {
	switch p {
	case PlatformPlayStation:
		return "PlayStation"
	case PlatformXbox:
		return "Xbox"
	case PlatformPC:
		return "PC"
	}
	return string(p)
}

// TransferType selects the coin delivery method a price applies to.
type TransferType string

const (
	TransferNormal  TransferType = "normal"
	TransferInstant TransferType = "instant"
)

// TransferTypes lists every transfer type in menu order.
func TransferTypes() []TransferType {
	return []TransferType{TransferNormal, TransferInstant}
}

// ParseTransferType validates a raw transfer type value.
func ParseTransferType(raw string) (TransferType, error) {
	switch TransferType(raw) {
	case TransferNormal, TransferInstant:
		return TransferType(raw), nil
	}
	return "", &ValidationError{Field: "transfer_type", Reason: "unknown transfer type", code: CodeBadTransferType}
}

// Label returns the user-facing transfer type name.
func (t TransferType) Label() string {
	switch t {
	case TransferNormal:
		return "Normal"
	case TransferInstant:
		return "Instant"
	}
	return string(t)
}

// PaymentMethod is how a seller receives their money.
type PaymentMethod string

const (
	PayVodafoneCash PaymentMethod = "vodafone_cash"
	PayEtisalatCash PaymentMethod = "etisalat_cash"
	PayOrangeCash   PaymentMethod = "orange_cash"
	PayWeCash       PaymentMethod = "we_cash"
	PayBankWallet   PaymentMethod = "bank_wallet"
	PayTelda        PaymentMethod = "telda"
	PayInstaPay     PaymentMethod = "instapay"
)

// PaymentMethods lists every method in menu order.
func PaymentMethods() []PaymentMethod {
	return []PaymentMethod{
		PayVodafoneCash, PayEtisalatCash, PayOrangeCash, PayWeCash,
		PayBankWallet, PayTelda, PayInstaPay,
	}
}

// ParsePaymentMethod validates a raw payment method value.
func ParsePaymentMethod(raw string) (PaymentMethod, error) {
	for _, m := range PaymentMethods() {
		if PaymentMethod(raw) == m {
			return m, nil
		}
	}
	return "", &ValidationError{Field: "payment_method", Reason: "unknown payment method", code: CodeBadPaymentMethod}
}

// Label returns the user-facing method name.
func (m PaymentMethod) Label() string {
	switch m {
	case PayVodafoneCash:
		return "Vodafone Cash"
	case PayEtisalatCash:
		return "Etisalat Cash"
	case PayOrangeCash:
		return "Orange Cash"
	case PayWeCash:
		return "WE Cash"
	case PayBankWallet:
		return "Bank Wallet"
	case PayTelda:
		return "Telda Card"
	case PayInstaPay:
		return "InstaPay"
	}
	return string(m)
}

// RegistrationStep is the persisted checkpoint of the registration flow.
type RegistrationStep string

const (
	StepStart                 RegistrationStep = "start"
	StepChoosingPlatform      RegistrationStep = "choosing_platform"
	StepEnteringWhatsapp      RegistrationStep = "entering_whatsapp"
	StepChoosingPayment       RegistrationStep = "choosing_payment"
	StepEnteringPaymentDetail RegistrationStep = "entering_payment_details"
	StepCompleted             RegistrationStep = "completed"
)

// User is the persisted seller profile.
type User struct {
	TelegramID     int64            `db:"telegram_id"`
	Username       string           `db:"username"`
	Platform       Platform         `db:"platform"`
	Whatsapp       string           `db:"whatsapp"`
	PaymentMethod  PaymentMethod    `db:"payment_method"`
	PaymentDetails string           `db:"payment_details"`
	Step           RegistrationStep `db:"registration_step"`
	CreatedAt      time.Time        `db:"created_at"`
	UpdatedAt      time.Time        `db:"updated_at"`
}

// Registered reports whether the profile finished registration.
func (u *User) Registered() bool {
	return u != nil && u.Step == StepCompleted
}

// Price is one priced catalog entry; Amount is the reference coin quantity
// the price applies to.
type Price struct {
	Platform     Platform     `db:"platform"`
	TransferType TransferType `db:"transfer_type"`
	Amount       int64        `db:"amount"`
	Price        int64        `db:"price"`
	UpdatedAt    time.Time    `db:"updated_at"`
}

// AuditEntry is one append-only record of a price change.
type AuditEntry struct {
	ID           int64        `db:"id"`
	AdminID      int64        `db:"admin_id"`
	Platform     Platform     `db:"platform"`
	TransferType TransferType `db:"transfer_type"`
	Amount       int64        `db:"amount"`
	OldPrice     int64        `db:"old_price"`
	NewPrice     int64        `db:"new_price"`
	ChangedAt    time.Time    `db:"changed_at"`
}

// ReferenceAmount is the coin quantity catalog prices are quoted for.
const ReferenceAmount int64 = 1_000_000

// Price bounds accepted by the ledger, in EGP per ReferenceAmount coins.
const (
	MinPrice int64 = 1000
	MaxPrice int64 = 50000
)

// Sale amount bounds accepted from sellers, in thousands of coins.
const (
	MinSaleAmountK int64 = 50
	MaxSaleAmountK int64 = 20000
)
