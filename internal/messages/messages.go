// Package messages centralizes every user-facing reply text.
package messages

import (
	"fmt"
	"strings"

	"github.com/babababa22003300kaka-bot/eafc232cons/core/telegram/format"
	"github.com/babababa22003300kaka-bot/eafc232cons/internal/domain"
)

// escapeMD guards user-supplied values rendered inside Markdown replies.
func escapeMD(s string) string {
	out, err := format.EscapeMarkdown(s, format.MarkdownV1, "")
	if err != nil {
		return s
	}
	return out
}

// Shared notices.
const (
	Busy            = "Please finish your current action first, or send /cancel to stop it."
	RateLimited     = "You are sending messages too fast. Please wait a moment and try again."
	Failure         = "Something went wrong on our side. Please try again."
	Cancelled       = "Cancelled. Send /start to register or /sell to sell coins."
	NothingToCancel = "Nothing to cancel. Send /start to register or /sell to sell coins."
	Greeting        = "Welcome to the FC26 coin shop! Send /start to register as a seller."
	Menu            = "You are registered. Send /sell to sell coins or /profile to view your data."
)

// Registration flow.
const (
	ChoosePlatform      = "Let's get you registered. Which platform do you play on?"
	AskWhatsapp         = "Great. Now send your WhatsApp number (example: 01012345678)."
	ChoosePaymentMethod = "How would you like to receive your money?"
	RegistrationDone    = "Registration complete! Send /sell whenever you want to sell coins."
	InterruptedQuestion = "You have an unfinished registration. Continue where you left off, or start over?"
	PickFromButtons     = "Please pick one of the buttons above."
	PhoneSymbolsHint    = "That doesn't look like a number. Send digits only, example: 01012345678."
	PhoneLengthHint     = "The number must be exactly 11 digits, example: 01012345678."
	PhoneCarrierHint    = "Egyptian numbers start with 010, 011, 012 or 015. Try again."
	PaymentDetailHint   = "Those details don't match the chosen method. Please check and resend."
)

// AskPaymentDetails names what to send for the chosen method.
func AskPaymentDetails(m domain.PaymentMethod) string {
	switch m {
	case domain.PayTelda:
		return "Send your 16-digit Telda card number."
	case domain.PayInstaPay:
		return "Send your InstaPay payment link."
	default:
		return fmt.Sprintf("Send the mobile number of your %s wallet.", m.Label())
	}
}

// RegistrationSummary renders the stored profile after completion.
func RegistrationSummary(u *domain.User) string {
	var b strings.Builder
	b.WriteString("Your seller profile:\n")
	fmt.Fprintf(&b, "Platform: %s\n", u.Platform.Label())
	fmt.Fprintf(&b, "WhatsApp: %s\n", escapeMD(u.Whatsapp))
	fmt.Fprintf(&b, "Payment: %s\n", u.PaymentMethod.Label())
	fmt.Fprintf(&b, "Details: %s", escapeMD(u.PaymentDetails))
	return b.String()
}

// Sale flow.
const (
	SellNeedsRegistration = "You need to register first. Send /start to begin."
	SellChoosePlatform    = "Selling coins. Which platform?"
	SellChooseTransfer    = "Normal or instant transfer?"
	SellAskAmount         = "How many coins are you selling? Send the amount in thousands (example: 900 for 900k, range 50 to 20000)."
	AmountSymbolsHint     = "Digits only please, no letters like k or m. Example: 900."
	AmountLengthHint      = "The amount must be 2 to 5 digits, in thousands. Example: 900."
	AmountRangeHint       = "We buy between 50k and 20000k coins per order. Try another amount."
)

// OrderSummary renders the final quote for a sale.
func OrderSummary(orderID string, platform domain.Platform, tt domain.TransferType, amountK, payout int64) string {
	var b strings.Builder
	b.WriteString("Order received!\n")
	fmt.Fprintf(&b, "Order ID: %s\n", orderID)
	fmt.Fprintf(&b, "Platform: %s\n", platform.Label())
	fmt.Fprintf(&b, "Transfer: %s\n", tt.Label())
	fmt.Fprintf(&b, "Amount: %dk coins\n", amountK)
	fmt.Fprintf(&b, "Payout: %d EGP\n", payout)
	b.WriteString("We will contact you on WhatsApp to arrange the transfer.")
	return b.String()
}

// Admin flow.
const (
	AdminOnly           = "This command is for the administrator."
	AdminMenu           = "Price administration. What would you like to do?"
	AdminChoosePlatform = "Edit prices. Which platform?"
	AdminChooseTransfer = "Which transfer type?"
	AdminPriceFormat    = "Digits only please. Example: 5600."
	AdminPriceRange     = "Prices must be between 1000 and 50000 EGP per million."
)

// AdminAskPrice shows the current price before asking for the new one.
func AdminAskPrice(platform domain.Platform, tt domain.TransferType, current int64) string {
	return fmt.Sprintf("%s / %s is currently %d EGP per million. Send the new price.",
		platform.Label(), tt.Label(), current)
}

// AdminPriceUpdated confirms a committed change.
func AdminPriceUpdated(platform domain.Platform, tt domain.TransferType, oldPrice, newPrice int64) string {
	return fmt.Sprintf("Done. %s / %s: %d -> %d EGP per million.",
		platform.Label(), tt.Label(), oldPrice, newPrice)
}

// PriceTable renders the catalog for the admin's read-only view.
func PriceTable(prices []domain.Price) string {
	if len(prices) == 0 {
		return "The catalog is empty."
	}
	var b strings.Builder
	b.WriteString("Current prices (EGP per million):\n")
	for _, p := range prices {
		fmt.Fprintf(&b, "%s / %s: %d\n", p.Platform.Label(), p.TransferType.Label(), p.Price)
	}
	return strings.TrimRight(b.String(), "\n")
}

// AuditTable renders recent price changes.
func AuditTable(entries []domain.AuditEntry) string {
	if len(entries) == 0 {
		return "No price changes recorded yet."
	}
	var b strings.Builder
	b.WriteString("Recent price changes:\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "%s %s / %s: %d -> %d (admin %d)\n",
			e.ChangedAt.Format("2006-01-02 15:04"),
			e.Platform.Label(), e.TransferType.Label(),
			e.OldPrice, e.NewPrice, e.AdminID)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Profile flow.
const (
	ProfileMissing       = "No profile found. Send /start to register."
	ProfileDeleteAsk     = "Delete your profile and all stored data?"
	ProfileDeleteConfirm = "This cannot be undone. Really delete everything?"
	ProfileDeleted       = "Your profile was deleted. Send /start to register again."
	ProfileKept          = "Nothing was deleted."
)
