package domain

import "errors"

var (
	ErrDispatchHalted  = errors.New("dispatch_halted")
	ErrInvoiceUnknown  = errors.New("invoice_unknown")
	ErrRetriesExceeded = errors.New("retries_exceeded")
)
