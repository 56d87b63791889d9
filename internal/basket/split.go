package basket

import (
	"vereinskasse/backend/internal/domain"
	"vereinskasse/backend/internal/money"
)

// SplitForm is the raw state of the two payment fields on the register:
// cash handed over and the amount left open on the tab.
//
// The open-tab field is derived automatically only when the tendered cash
// or the basket total changes. Editing the open-tab field itself never
// triggers the derivation, so a manual entry survives until the next change
// of tendered cash or total.
type SplitForm struct {
	Tendered string
	OpenTab  string
}

func (f SplitForm) WithTendered(raw string, total money.Cents) SplitForm {
	f.Tendered = raw
	return f.derive(total)
}

func (f SplitForm) WithTotal(total money.Cents) SplitForm {
	return f.derive(total)
}

func (f SplitForm) WithOpenTab(raw string) SplitForm {
	f.OpenTab = raw
	return f
}

func (f SplitForm) derive(total money.Cents) SplitForm {
	tendered := money.ParseLenient(f.Tendered)
	current := money.ParseLenient(f.OpenTab)
	dueNow := money.Max(0, total-current)

	next := current
	switch {
	case tendered >= total:
		next = 0
	case tendered > 0 && tendered < dueNow:
		next = total - tendered
	}
	next = money.Clamp(next, 0, total)

	if next != current {
		f.OpenTab = next.String()
	}
	return f
}

// Split derives the payment split for total from the current field values.
func (f SplitForm) Split(total money.Cents) domain.PaymentSplit {
	if total < 0 {
		total = 0
	}
	tendered := money.ParseLenient(f.Tendered)
	openTab := money.Clamp(money.ParseLenient(f.OpenTab), 0, total)
	due := money.Max(0, total-openTab)

	return domain.PaymentSplit{
		TotalCents:     total,
		TenderedCents:  tendered,
		OpenTabCents:   openTab,
		DueInCashCents: due,
		TipCents:       money.Max(0, tendered-due),
	}
}

// ComputeSplit applies the open-tab policy to a manually entered open amount
// and the tendered cash, in that order, and returns the resulting split.
func ComputeSplit(total money.Cents, tenderedRaw string, manualOpenRaw string) domain.PaymentSplit {
	return SplitForm{OpenTab: manualOpenRaw}.WithTendered(tenderedRaw, total).Split(total)
}
