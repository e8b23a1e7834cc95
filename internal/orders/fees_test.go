package orders

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/dormship-backend/pkg/config"
)

func TestShippingFee(t *testing.T) {
	cfg := config.FeesConfig{
		BaseFee:      10000,
		PerKgFee:     5000,
		FreeWeightKg: decimal.NewFromInt(1),
		RoundTo:      1000,
	}
	cases := map[string]struct {
		weight string
		want   int64
	}{
		"under allowance": {weight: "0.4", want: 10000},
		"at allowance":    {weight: "1", want: 10000},
		"two kilograms":   {weight: "2", want: 15000},
		"rounds up":       {weight: "1.15", want: 11000},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, tc.want, ShippingFee(cfg, decimal.RequireFromString(tc.weight)))
		})
	}
}
