// README: Fee inputs and the immutable per-delivery fee breakdown.
package fees

import "github.com/shopspring/decimal"

// Input is the part of a delivery that drives its fees.
type Input struct {
	Mileage float64
	IsLarge bool
	Tips    decimal.Decimal
}

// Breakdown is computed once per settlement and never mutated. Values keep
// full precision; round only for display or capture.
type Breakdown struct {
	PickupFee          decimal.Decimal
	DropoffFee         decimal.Decimal
	MileageFee         decimal.Decimal
	OverageFee         decimal.Decimal
	LargeBonusFee      decimal.Decimal
	PlatformCommission decimal.Decimal
	DriverMileageNet   decimal.Decimal
	Tips               decimal.Decimal
	DriverTotal        decimal.Decimal
	BuyerPortion       decimal.Decimal
	SellerPortion      decimal.Decimal
	TotalDeliveryFee   decimal.Decimal
}

// Display is the breakdown rounded to cents for presentation.
type Display struct {
	PickupFee          string `json:"pickup_fee"`
	DropoffFee         string `json:"dropoff_fee"`
	MileageFee         string `json:"mileage_fee"`
	OverageFee         string `json:"overage_fee"`
	LargeBonusFee      string `json:"large_bonus_fee"`
	PlatformCommission string `json:"platform_commission"`
	Tips               string `json:"tips"`
	DriverTotal        string `json:"driver_total"`
	BuyerPortion       string `json:"buyer_portion"`
	SellerPortion      string `json:"seller_portion"`
	TotalDeliveryFee   string `json:"total_delivery_fee"`
}
