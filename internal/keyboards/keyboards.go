// Package keyboards builds the choice sets attached to flow replies.
package keyboards

import (
	"github.com/babababa22003300kaka-bot/eafc232cons/core/telegram/flow"
	"github.com/babababa22003300kaka-bot/eafc232cons/internal/domain"
)

// Callback keys shared between keyboards and flow rules.
const (
	KeyPlatform      = "platform"
	KeyTransfer      = "transfer"
	KeyPayMethod     = "pay_method"
	KeyRegContinue   = "reg_continue"
	KeyRegRestart    = "reg_restart"
	KeyAdminEdit     = "admin_edit"
	KeyAdminView     = "admin_view"
	KeyAdminAudit    = "admin_audit"
	KeyProfileDelete = "profile_delete"
	KeyProfileReally = "profile_really"
	KeyProfileKeep   = "profile_keep"
)

// Platforms renders one button per platform.
func Platforms() [][]flow.Choice {
	var row []flow.Choice
	for _, p := range domain.Platforms() {
		row = append(row, flow.Choice{Label: p.Label(), Key: KeyPlatform, Payload: string(p)})
	}
	return [][]flow.Choice{row}
}

// TransferTypes renders the normal/instant pair.
func TransferTypes() [][]flow.Choice {
	var row []flow.Choice
	for _, t := range domain.TransferTypes() {
		row = append(row, flow.Choice{Label: t.Label(), Key: KeyTransfer, Payload: string(t)})
	}
	return [][]flow.Choice{row}
}

// PaymentMethods renders two methods per row.
func PaymentMethods() [][]flow.Choice {
	var rows [][]flow.Choice
	var row []flow.Choice
	for _, m := range domain.PaymentMethods() {
		row = append(row, flow.Choice{Label: m.Label(), Key: KeyPayMethod, Payload: string(m)})
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return rows
}

// InterruptedDecision offers continue or restart after an abandoned
// registration.
func InterruptedDecision() [][]flow.Choice {
	return [][]flow.Choice{{
		{Label: "Continue", Key: KeyRegContinue},
		{Label: "Start over", Key: KeyRegRestart},
	}}
}

// AdminMenu offers the price edit and read-only views.
func AdminMenu() [][]flow.Choice {
	return [][]flow.Choice{
		{{Label: "Edit a price", Key: KeyAdminEdit}},
		{{Label: "View prices", Key: KeyAdminView}},
		{{Label: "Recent changes", Key: KeyAdminAudit}},
	}
}

// ProfileDelete starts the double confirmation.
func ProfileDelete() [][]flow.Choice {
	return [][]flow.Choice{{
		{Label: "Delete my data", Key: KeyProfileDelete},
	}}
}

// ProfileConfirm is the second confirmation step.
func ProfileConfirm() [][]flow.Choice {
	return [][]flow.Choice{{
		{Label: "Yes, delete everything", Key: KeyProfileReally},
		{Label: "Keep my data", Key: KeyProfileKeep},
	}}
}
