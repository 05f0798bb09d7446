package commission_fee

// ZeroCommissionFee implements CommissionFee interface with zero commission.
// It is the default: fills settle at the slippage-adjusted price alone.
type ZeroCommissionFee struct{}

// NewZeroCommissionFee creates a new zero commission fee.
func NewZeroCommissionFee() CommissionFee {
	return &ZeroCommissionFee{}
}

// Calculate returns 0 for any fill.
func (c *ZeroCommissionFee) Calculate(quantity float64, price float64) float64 {
	return 0.0
}
