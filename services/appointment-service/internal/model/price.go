package model

import (
	"errors"

	"github.com/shopspring/decimal"
)

var ErrPriceBelowFloor = errors.New("custom price below service list price")

// PriceOnRequest is the sentinel for quote-on-request services. It is excluded
// from the price-floor check and from all currency arithmetic; it renders as
// "on request", never as a literal amount.
var PriceOnRequest = decimal.NewFromInt(-1)

func IsOnRequest(p decimal.Decimal) bool {
	return p.Equal(PriceOnRequest)
}

// ValidateCustomPrice enforces the floor invariant: a practitioner override
// must never undercut the service list price. The on-request sentinel on
// either side skips the check.
func ValidateCustomPrice(custom, list decimal.Decimal) error {
	if IsOnRequest(custom) || IsOnRequest(list) {
		return nil
	}
	if custom.IsNegative() {
		return ErrPriceBelowFloor
	}
	if custom.LessThan(list) {
		return ErrPriceBelowFloor
	}
	return nil
}

func FormatPrice(p decimal.Decimal, currency string) string {
	if IsOnRequest(p) {
		return "on request"
	}
	return p.StringFixed(2) + " " + currency
}
