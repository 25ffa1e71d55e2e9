// Package flows defines the bot's conversations: registration, coin sale,
// admin price editing, and profile management.
package flows

import (
	"context"
	"errors"

	"github.com/babababa22003300kaka-bot/eafc232cons/core/telegram/flow"
	"github.com/babababa22003300kaka-bot/eafc232cons/internal/domain"
	"github.com/babababa22003300kaka-bot/eafc232cons/internal/messages"
)

// Flow names, also used as bucket namespaces.
const (
	RegistrationFlow = "registration"
	SellFlow         = "sell"
	AdminFlow        = "admin"
	ProfileFlow      = "profile"
)

// hintFor maps a validation rejection to the reply the user sees. Unknown
// errors get the generic failure notice.
func hintFor(err error) string {
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		return messages.Failure
	}
	switch ve.Code() {
	case domain.CodeBadPhone:
		return messages.PhoneSymbolsHint
	case domain.CodeBadPhoneLength:
		return messages.PhoneLengthHint
	case domain.CodeBadPhonePrefix:
		return messages.PhoneCarrierHint
	case domain.CodeBadPaymentDetail:
		return messages.PaymentDetailHint
	case domain.CodeBadAmountSymbols:
		return messages.AmountSymbolsHint
	case domain.CodeBadAmountLength:
		return messages.AmountLengthHint
	case domain.CodeBadAmountRange:
		return messages.AmountRangeHint
	case domain.CodeBadPriceFormat:
		return messages.AdminPriceFormat
	case domain.CodeBadPriceRange:
		return messages.AdminPriceRange
	}
	return messages.Failure
}

// nudge answers free text typed where a button press is expected. The
// event stays claimed and the state does not move.
func nudge(current flow.State) flow.HandlerFunc {
	return func(ctx context.Context, ev *flow.Event, fr *flow.Frame) (flow.State, error) {
		if err := fr.Reply(ctx, ev.UserID, messages.PickFromButtons); err != nil {
			return current, err
		}
		return current, nil
	}
}

// cancel ends any flow from any state.
func cancel() flow.Rule {
	return flow.Rule{
		Match: flow.OnCommand("cancel"),
		Handle: func(ctx context.Context, ev *flow.Event, fr *flow.Frame) (flow.State, error) {
			if err := fr.Reply(ctx, ev.UserID, messages.Cancelled); err != nil {
				return flow.StateEnd, err
			}
			return flow.StateEnd, nil
		},
	}
}
