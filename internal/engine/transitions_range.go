package engine

import (
	"fmt"

	"mostrod/internal/database"

	"github.com/shopspring/decimal"
)

// ErrFiatAmountOutOfRange is returned when a taker's chosen fiat amount
// falls outside the [min,max] range the maker posted.
type ErrFiatAmountOutOfRange struct {
	OrderID                string
	Min, Max, Requested    int64
}

func (e *ErrFiatAmountOutOfRange) Error() string {
	return fmt.Sprintf("order %s: fiat amount %d outside range [%d,%d]", e.OrderID, e.Requested, e.Min, e.Max)
}

// freezeRangeAmount validates a range order's taker-chosen fiat amount and
// converts it to sats at marketRate (fiat units per BTC), adjusted by the
// order's premium. A non-range order is returned unchanged: its amountSats
// was fixed at posting time and needs no freezing.
//
// Decimal, not float64 or integer division, carries the rate math: a
// fiat_amount/rate*1e8 computed in float64 can drift by enough satoshis to
// matter on an escrowed hold invoice, and the premium is itself a
// percentage that needs exact decimal shifting rather than rounding twice.
func freezeRangeAmount(o *database.Order, fiatAmount int64, marketRate decimal.Decimal) (amountSats int64, err error) {
	if !o.IsRange() {
		return o.AmountSats, nil
	}
	if fiatAmount < *o.MinFiatAmount || fiatAmount > *o.MaxFiatAmount {
		return 0, &ErrFiatAmountOutOfRange{OrderID: o.ID, Min: *o.MinFiatAmount, Max: *o.MaxFiatAmount, Requested: fiatAmount}
	}
	if marketRate.IsZero() || marketRate.IsNegative() {
		return 0, fmt.Errorf("order %s: invalid market rate %s", o.ID, marketRate)
	}

	const satsPerBTC = "100000000"
	premiumMultiplier := decimal.NewFromInt(100).Add(decimal.NewFromInt(int64(o.Premium))).Div(decimal.NewFromInt(100))
	effectiveRate := marketRate.Mul(premiumMultiplier)

	sats := decimal.NewFromInt(fiatAmount).
		Div(effectiveRate).
		Mul(decimal.RequireFromString(satsPerBTC)).
		Round(0)
	return sats.IntPart(), nil
}
