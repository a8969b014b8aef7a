// README: Fee calculator turns delivery attributes into a fee breakdown.
package fees

import "github.com/shopspring/decimal"

var (
	PickupFee      = decimal.RequireFromString("4.00")
	DropoffFee     = decimal.RequireFromString("2.00")
	BaseTierMiles  = decimal.NewFromInt(15)
	BaseMileRate   = decimal.RequireFromString("0.50")
	OverageRate    = decimal.RequireFromString("1.00")
	LargeItemBonus = decimal.RequireFromString("25.00")
	CommissionRate = decimal.RequireFromString("0.15")

	// DefaultMileage is used when a delivery has no known mileage.
	DefaultMileage = decimal.NewFromInt(5)

	two = decimal.NewFromInt(2)
)

// Compute returns the fee breakdown for one delivery. Commission applies to
// the mileage-derived portion only; tips pass through to the driver in full.
func Compute(in Input) Breakdown {
	miles := decimal.NewFromFloat(in.Mileage)
	if !miles.IsPositive() {
		miles = DefaultMileage
	}
	tips := in.Tips
	if tips.IsNegative() {
		tips = decimal.Zero
	}

	baseMiles := decimal.Min(miles, BaseTierMiles)
	overageMiles := decimal.Max(miles.Sub(BaseTierMiles), decimal.Zero)

	mileageFee := baseMiles.Mul(BaseMileRate)
	overageFee := overageMiles.Mul(OverageRate)
	largeBonus := decimal.Zero
	if in.IsLarge {
		largeBonus = LargeItemBonus
	}

	mileageGross := mileageFee.Add(overageFee)
	commission := mileageGross.Mul(CommissionRate)
	mileageNet := mileageGross.Sub(commission)

	driverTotal := PickupFee.Add(DropoffFee).Add(mileageNet).Add(largeBonus).Add(tips)
	total := PickupFee.Add(DropoffFee).Add(mileageFee).Add(overageFee).Add(largeBonus)
	half := total.Div(two)

	return Breakdown{
		PickupFee:          PickupFee,
		DropoffFee:         DropoffFee,
		MileageFee:         mileageFee,
		OverageFee:         overageFee,
		LargeBonusFee:      largeBonus,
		PlatformCommission: commission,
		DriverMileageNet:   mileageNet,
		Tips:               tips,
		DriverTotal:        driverTotal,
		BuyerPortion:       half,
		SellerPortion:      half,
		TotalDeliveryFee:   total,
	}
}

// RejectionCompensation is what the driver earns when the buyer rejects the
// item: the full pickup fee plus half the net mileage. No dropoff fee, no
// bonus, no tips.
func (b Breakdown) RejectionCompensation() decimal.Decimal {
	return b.PickupFee.Add(b.DriverMileageNet.Div(two))
}

func (b Breakdown) Display() Display {
	f := func(d decimal.Decimal) string { return d.StringFixed(2) }
	return Display{
		PickupFee:          f(b.PickupFee),
		DropoffFee:         f(b.DropoffFee),
		MileageFee:         f(b.MileageFee),
		OverageFee:         f(b.OverageFee),
		LargeBonusFee:      f(b.LargeBonusFee),
		PlatformCommission: f(b.PlatformCommission),
		Tips:               f(b.Tips),
		DriverTotal:        f(b.DriverTotal),
		BuyerPortion:       f(b.BuyerPortion),
		SellerPortion:      f(b.SellerPortion),
		TotalDeliveryFee:   f(b.TotalDeliveryFee),
	}
}
