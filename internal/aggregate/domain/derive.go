package domain

import "github.com/shopspring/decimal"

var basisPoints = decimal.NewFromInt(10000)

// DeriveStatus computes the reconciliation verdict from the paid total, the
// locked invoice amount, and the upstream invoice status, with a tolerance
// band of toleranceBps basis points around the invoice amount.
//
// The band is inclusive on both edges: paid exactly at amount*(1-tol) is
// full, paid strictly above amount*(1+tol) is overpaid.
//
// Confirmed funds are always evaluated by amounts, whatever the upstream
// invoice status says. A customer who paid before expiry must never be
// classified invalidated; invalidated is reserved for terminal invoices
// with zero confirmed payment.
func DeriveStatus(paid, amount decimal.Decimal, terminal bool, toleranceBps int64) ReconciliationStatus {
	if amount.IsZero() {
		return StatusPending
	}

	if paid.IsZero() {
		if terminal {
			return StatusInvalidated
		}
		return StatusPending
	}

	tolerance := amount.Mul(decimal.NewFromInt(toleranceBps)).Div(basisPoints)
	lower := amount.Sub(tolerance)
	upper := amount.Add(tolerance)

	switch {
	case paid.GreaterThan(upper):
		return StatusOverpaid
	case paid.GreaterThanOrEqual(lower):
		return StatusFull
	default:
		return StatusPartial
	}
}
