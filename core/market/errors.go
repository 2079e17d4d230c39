package market

import (
	"errors"

	"deliverynet/native/directory"
	"deliverynet/native/escrow"
	"deliverynet/native/proposals"
)

var (
	ErrInsufficientFunds      = errors.New("market: insufficient funds")
	ErrOrderExists            = errors.New("market: order already exists")
	ErrMalformedPayload       = errors.New("market: malformed payload")
	ErrOrderNotFound          = errors.New("market: order not found")
	ErrProposalNotFound       = errors.New("market: proposal not found")
	ErrNoCourierAssigned      = errors.New("market: order has no courier assigned")
	ErrCourierAlreadyAssigned = errors.New("market: order already has a courier")
	ErrUnauthorized           = errors.New("market: caller not authorized")
	ErrUnknownInstruction     = errors.New("market: unknown instruction")

	errNilState = errors.New("market: state not configured")
)

var recoverable = []error{
	ErrInsufficientFunds,
	ErrOrderExists,
	ErrMalformedPayload,
	ErrOrderNotFound,
	ErrProposalNotFound,
	ErrNoCourierAssigned,
	ErrCourierAlreadyAssigned,
	ErrUnauthorized,
	ErrUnknownInstruction,
	escrow.ErrInvalidAmount,
	directory.ErrCompanyNotFound,
	directory.ErrCourierNotFound,
	directory.ErrInvalidVehicle,
	directory.ErrInvalidCompany,
	proposals.ErrAlreadyApproved,
	proposals.ErrClientMismatch,
	proposals.ErrInvalidFee,
}

// IsRecoverable reports whether err is a business-rule rejection. Such
// errors leave state untouched and, for funds-received instructions, hand the
// full amount back to the payer. Anything else is fatal.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range recoverable {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
