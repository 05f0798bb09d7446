package commission_fee

// PercentNotionalFee charges a flat fraction of the fill notional, the way
// crypto exchanges quote taker fees (e.g. 0.0006 for 0.06%).
type PercentNotionalFee struct {
	rate float64
}

func NewPercentNotionalFee(rate float64) CommissionFee {
	return &PercentNotionalFee{rate: rate}
}

func (c *PercentNotionalFee) Calculate(quantity float64, price float64) float64 {
	return c.rate * quantity * price
}
