package orders

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dormship-backend/pkg/config"
)

// ShippingFee prices a parcel in VND: a base fee plus a per-kg rate for the
// weight above the free allowance, rounded up to the configured step.
func ShippingFee(cfg config.FeesConfig, weight decimal.Decimal) int64 {
	extra := weight.Sub(cfg.FreeWeightKg)
	if extra.IsNegative() {
		extra = decimal.Zero
	}
	fee := decimal.NewFromInt(cfg.BaseFee).Add(extra.Mul(decimal.NewFromInt(cfg.PerKgFee)))
	if cfg.RoundTo > 1 {
		step := decimal.NewFromInt(cfg.RoundTo)
		fee = fee.Div(step).Ceil().Mul(step)
	}
	return fee.IntPart()
}
