package flows

import (
	"context"
	"errors"

	"github.com/babababa22003300kaka-bot/eafc232cons/core/telegram/flow"
	"github.com/babababa22003300kaka-bot/eafc232cons/internal/domain"
	"github.com/babababa22003300kaka-bot/eafc232cons/internal/keyboards"
	"github.com/babababa22003300kaka-bot/eafc232cons/internal/messages"
	"github.com/babababa22003300kaka-bot/eafc232cons/internal/storage"
	"github.com/babababa22003300kaka-bot/eafc232cons/internal/validate"
)

// Registration states. StateInterrupted is also seeded by the recovery
// router when an abandoned attempt is detected.
const (
	StatePlatformChoice flow.State = "platform_choice"
	StateContactEntry   flow.State = "contact_entry"
	StatePaymentChoice  flow.State = "payment_method_choice"
	StatePaymentDetails flow.State = "payment_details_entry"
	StateInterrupted    flow.State = "interrupted_decision"
)

// Registration builds the seller onboarding flow. The persisted
// registration step is authoritative: /start against a completed profile
// short-circuits to the menu, against an abandoned attempt asks whether to
// continue or start over.
func Registration(users *storage.Users) *flow.Definition {
	r := &registration{users: users}
	return &flow.Definition{
		Name: RegistrationFlow,
		Entry: []flow.Rule{
			{Match: flow.OnCommand("start"), Handle: r.start},
		},
		States: map[flow.State][]flow.Rule{
			StatePlatformChoice: {
				{Match: flow.OnCallback(keyboards.KeyPlatform), Handle: r.choosePlatform},
				{Match: flow.OnText(), Handle: nudge(StatePlatformChoice)},
			},
			StateInterrupted: {
				{Match: flow.OnCallback(keyboards.KeyRegContinue), Handle: r.resume},
				{Match: flow.OnCallback(keyboards.KeyRegRestart), Handle: r.restart},
				{Match: flow.OnText(), Handle: nudge(StateInterrupted)},
			},
			StateContactEntry: {
				{Match: flow.OnText(), Handle: r.enterWhatsapp},
			},
			StatePaymentChoice: {
				{Match: flow.OnCallback(keyboards.KeyPayMethod), Handle: r.choosePayment},
				{Match: flow.OnText(), Handle: nudge(StatePaymentChoice)},
			},
			StatePaymentDetails: {
				{Match: flow.OnText(), Handle: r.enterDetails},
			},
		},
		Fallbacks: []flow.Rule{cancel()},
	}
}

type registration struct {
	users *storage.Users
}

func (r *registration) start(ctx context.Context, ev *flow.Event, fr *flow.Frame) (flow.State, error) {
	step, err := r.users.Step(ctx, ev.UserID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return r.begin(ctx, ev, fr)
	case err != nil:
		if rerr := fr.Reply(ctx, ev.UserID, messages.Failure); rerr != nil {
			return flow.StateEnd, rerr
		}
		return flow.StateEnd, err
	case step == domain.StepCompleted:
		if err := fr.Reply(ctx, ev.UserID, messages.Menu); err != nil {
			return flow.StateEnd, err
		}
		return flow.StateEnd, nil
	default:
		if err := fr.ReplyWith(ctx, ev.UserID, flow.Reply{
			Text:    messages.InterruptedQuestion,
			Choices: keyboards.InterruptedDecision(),
		}); err != nil {
			return flow.StateEnd, err
		}
		return StateInterrupted, nil
	}
}

func (r *registration) begin(ctx context.Context, ev *flow.Event, fr *flow.Frame) (flow.State, error) {
	if err := r.users.Begin(ctx, ev.UserID, ev.Username); err != nil {
		if rerr := fr.Reply(ctx, ev.UserID, messages.Failure); rerr != nil {
			return flow.StateEnd, rerr
		}
		return flow.StateEnd, err
	}
	if err := fr.ReplyWith(ctx, ev.UserID, flow.Reply{
		Text:    messages.ChoosePlatform,
		Choices: keyboards.Platforms(),
	}); err != nil {
		return flow.StateEnd, err
	}
	return StatePlatformChoice, nil
}

// resume continues an abandoned attempt from its persisted checkpoint.
func (r *registration) resume(ctx context.Context, ev *flow.Event, fr *flow.Frame) (flow.State, error) {
	u, err := r.users.Get(ctx, ev.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return r.begin(ctx, ev, fr)
		}
		if rerr := fr.Reply(ctx, ev.UserID, messages.Failure); rerr != nil {
			return StateInterrupted, rerr
		}
		return StateInterrupted, err
	}

	switch u.Step {
	case domain.StepEnteringWhatsapp:
		if err := fr.Reply(ctx, ev.UserID, messages.AskWhatsapp); err != nil {
			return StateInterrupted, err
		}
		return StateContactEntry, nil
	case domain.StepChoosingPayment:
		if err := fr.ReplyWith(ctx, ev.UserID, flow.Reply{
			Text:    messages.ChoosePaymentMethod,
			Choices: keyboards.PaymentMethods(),
		}); err != nil {
			return StateInterrupted, err
		}
		return StatePaymentChoice, nil
	case domain.StepEnteringPaymentDetail:
		if u.PaymentMethod != "" {
			fr.Bucket.Set("payment_method", string(u.PaymentMethod))
			if err := fr.Reply(ctx, ev.UserID, messages.AskPaymentDetails(u.PaymentMethod)); err != nil {
				return StateInterrupted, err
			}
			return StatePaymentDetails, nil
		}
		fallthrough
	default:
		if err := fr.ReplyWith(ctx, ev.UserID, flow.Reply{
			Text:    messages.ChoosePlatform,
			Choices: keyboards.Platforms(),
		}); err != nil {
			return StateInterrupted, err
		}
		return StatePlatformChoice, nil
	}
}

// restart resets the checkpoint and begins from the platform choice.
func (r *registration) restart(ctx context.Context, ev *flow.Event, fr *flow.Frame) (flow.State, error) {
	fr.Bucket.Delete("payment_method")
	return r.begin(ctx, ev, fr)
}

func (r *registration) choosePlatform(ctx context.Context, ev *flow.Event, fr *flow.Frame) (flow.State, error) {
	platform, err := domain.ParsePlatform(ev.Trigger.Payload)
	if err != nil {
		if rerr := fr.Reply(ctx, ev.UserID, messages.PickFromButtons); rerr != nil {
			return StatePlatformChoice, rerr
		}
		return StatePlatformChoice, nil
	}
	if err := r.users.Checkpoint(ctx, ev.UserID, domain.StepEnteringWhatsapp, "platform", string(platform)); err != nil {
		if rerr := fr.Reply(ctx, ev.UserID, messages.Failure); rerr != nil {
			return StatePlatformChoice, rerr
		}
		return StatePlatformChoice, err
	}
	if err := fr.Reply(ctx, ev.UserID, messages.AskWhatsapp); err != nil {
		return StatePlatformChoice, err
	}
	return StateContactEntry, nil
}

func (r *registration) enterWhatsapp(ctx context.Context, ev *flow.Event, fr *flow.Frame) (flow.State, error) {
	phone, err := validate.Phone(ev.Trigger.Text)
	if err != nil {
		if rerr := fr.Reply(ctx, ev.UserID, hintFor(err)); rerr != nil {
			return StateContactEntry, rerr
		}
		return StateContactEntry, nil
	}
	if err := r.users.Checkpoint(ctx, ev.UserID, domain.StepChoosingPayment, "whatsapp", phone); err != nil {
		if rerr := fr.Reply(ctx, ev.UserID, messages.Failure); rerr != nil {
			return StateContactEntry, rerr
		}
		return StateContactEntry, err
	}
	if err := fr.ReplyWith(ctx, ev.UserID, flow.Reply{
		Text:    messages.ChoosePaymentMethod,
		Choices: keyboards.PaymentMethods(),
	}); err != nil {
		return StateContactEntry, err
	}
	return StatePaymentChoice, nil
}

func (r *registration) choosePayment(ctx context.Context, ev *flow.Event, fr *flow.Frame) (flow.State, error) {
	method, err := domain.ParsePaymentMethod(ev.Trigger.Payload)
	if err != nil {
		if rerr := fr.Reply(ctx, ev.UserID, messages.PickFromButtons); rerr != nil {
			return StatePaymentChoice, rerr
		}
		return StatePaymentChoice, nil
	}
	if err := r.users.Checkpoint(ctx, ev.UserID, domain.StepEnteringPaymentDetail, "payment_method", string(method)); err != nil {
		if rerr := fr.Reply(ctx, ev.UserID, messages.Failure); rerr != nil {
			return StatePaymentChoice, rerr
		}
		return StatePaymentChoice, err
	}
	fr.Bucket.Set("payment_method", string(method))
	if err := fr.Reply(ctx, ev.UserID, messages.AskPaymentDetails(method)); err != nil {
		return StatePaymentChoice, err
	}
	return StatePaymentDetails, nil
}

func (r *registration) enterDetails(ctx context.Context, ev *flow.Event, fr *flow.Frame) (flow.State, error) {
	method := domain.PaymentMethod(fr.Bucket.Value("payment_method"))
	if method == "" {
		// Bucket lost between restarts; the persisted checkpoint has it.
		u, err := r.users.Get(ctx, ev.UserID)
		if err != nil || u.PaymentMethod == "" {
			if rerr := fr.ReplyWith(ctx, ev.UserID, flow.Reply{
				Text:    messages.ChoosePaymentMethod,
				Choices: keyboards.PaymentMethods(),
			}); rerr != nil {
				return StatePaymentDetails, rerr
			}
			return StatePaymentChoice, nil
		}
		method = u.PaymentMethod
	}

	details, err := validate.PaymentDetails(method, ev.Trigger.Text)
	if err != nil {
		if rerr := fr.Reply(ctx, ev.UserID, hintFor(err)); rerr != nil {
			return StatePaymentDetails, rerr
		}
		return StatePaymentDetails, nil
	}
	if err := r.users.Checkpoint(ctx, ev.UserID, domain.StepEnteringPaymentDetail, "payment_details", details); err != nil {
		if rerr := fr.Reply(ctx, ev.UserID, messages.Failure); rerr != nil {
			return StatePaymentDetails, rerr
		}
		return StatePaymentDetails, err
	}
	if err := r.users.Complete(ctx, ev.UserID); err != nil {
		if rerr := fr.Reply(ctx, ev.UserID, messages.Failure); rerr != nil {
			return StatePaymentDetails, rerr
		}
		return StatePaymentDetails, err
	}

	u, err := r.users.Get(ctx, ev.UserID)
	if err != nil {
		return flow.StateEnd, err
	}
	if err := fr.Reply(ctx, ev.UserID, messages.RegistrationDone+"\n\n"+messages.RegistrationSummary(u)); err != nil {
		return flow.StateEnd, err
	}
	return flow.StateEnd, nil
}
