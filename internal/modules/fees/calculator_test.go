package fees

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCompute(t *testing.T) {
	tests := []struct {
		name           string
		in             Input
		wantMileage    string
		wantOverage    string
		wantCommission string
		wantDriver     string
		wantTotal      string
		wantHalf       string
	}{
		{
			name:           "10 miles, small item, $5 tips",
			in:             Input{Mileage: 10, Tips: dec("5.00")},
			wantMileage:    "5",
			wantOverage:    "0",
			wantCommission: "0.75",
			// 4 + 2 + 4.25 + 0 + 5
			wantDriver: "15.25",
			wantTotal:  "11",
			wantHalf:   "5.5",
		},
		{
			name:           "20 miles, large item, no tips",
			in:             Input{Mileage: 20, IsLarge: true},
			wantMileage:    "7.5",
			wantOverage:    "5",
			wantCommission: "1.875",
			// 4 + 2 + 10.625 + 25
			wantDriver: "41.625",
			wantTotal:  "43.5",
			wantHalf:   "21.75",
		},
		{
			name:           "exactly 15 miles has no overage",
			in:             Input{Mileage: 15},
			wantMileage:    "7.5",
			wantOverage:    "0",
			wantCommission: "1.125",
			wantDriver:     "12.375",
			wantTotal:      "13.5",
			wantHalf:       "6.75",
		},
		{
			name:           "unknown mileage defaults to 5 miles",
			in:             Input{Mileage: 0},
			wantMileage:    "2.5",
			wantOverage:    "0",
			wantCommission: "0.375",
			wantDriver:     "8.125",
			wantTotal:      "8.5",
			wantHalf:       "4.25",
		},
		{
			name:           "fractional overage",
			in:             Input{Mileage: 15.3},
			wantMileage:    "7.5",
			wantOverage:    "0.3",
			wantCommission: "1.17",
			wantDriver:     "12.63",
			wantTotal:      "13.8",
			wantHalf:       "6.9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := Compute(tt.in)
			check := func(field string, got decimal.Decimal, want string) {
				t.Helper()
				if !got.Equal(dec(want)) {
					t.Errorf("%s = %s, want %s", field, got, want)
				}
			}
			check("PickupFee", b.PickupFee, "4")
			check("DropoffFee", b.DropoffFee, "2")
			check("MileageFee", b.MileageFee, tt.wantMileage)
			check("OverageFee", b.OverageFee, tt.wantOverage)
			check("PlatformCommission", b.PlatformCommission, tt.wantCommission)
			check("DriverTotal", b.DriverTotal, tt.wantDriver)
			check("TotalDeliveryFee", b.TotalDeliveryFee, tt.wantTotal)
			check("BuyerPortion", b.BuyerPortion, tt.wantHalf)
			check("SellerPortion", b.SellerPortion, tt.wantHalf)
		})
	}
}

// TestComputeInvariants sweeps mileage/tip combinations and checks the
// conservation rules that must hold for every delivery.
func TestComputeInvariants(t *testing.T) {
	tips := []string{"0", "0.01", "3.33", "12.5"}
	for m := 1; m <= 400; m++ {
		miles := float64(m) / 10
		for _, large := range []bool{false, true} {
			for _, tip := range tips {
				in := Input{Mileage: miles, IsLarge: large, Tips: dec(tip)}
				b := Compute(in)

				lhs := b.DriverTotal.Add(b.PlatformCommission)
				rhs := b.PickupFee.Add(b.DropoffFee).Add(b.MileageFee).Add(b.OverageFee).Add(b.LargeBonusFee).Add(in.Tips)
				if !lhs.Equal(rhs) {
					t.Fatalf("%+v: driver+commission = %s, want %s", in, lhs, rhs)
				}
				if !b.BuyerPortion.Equal(b.SellerPortion) || !b.BuyerPortion.Mul(two).Equal(b.TotalDeliveryFee) {
					t.Fatalf("%+v: split %s/%s of %s", in, b.BuyerPortion, b.SellerPortion, b.TotalDeliveryFee)
				}
				if miles <= 15 && !b.OverageFee.IsZero() {
					t.Fatalf("%+v: unexpected overage %s", in, b.OverageFee)
				}
				if miles > 15 {
					want := decimal.NewFromFloat(miles).Sub(BaseTierMiles).Mul(OverageRate)
					if !b.OverageFee.Equal(want) {
						t.Fatalf("%+v: overage = %s, want %s", in, b.OverageFee, want)
					}
				}
			}
		}
	}
}

func TestComputeSplitIgnoresTips(t *testing.T) {
	a := Compute(Input{Mileage: 12})
	b := Compute(Input{Mileage: 12, Tips: dec("20")})
	if !a.BuyerPortion.Equal(b.BuyerPortion) || !a.TotalDeliveryFee.Equal(b.TotalDeliveryFee) {
		t.Fatalf("tips changed the customer split: %s vs %s", a.BuyerPortion, b.BuyerPortion)
	}
	if !b.DriverTotal.Sub(a.DriverTotal).Equal(dec("20")) {
		t.Fatalf("tips must pass 100%% to the driver")
	}
}

func TestRejectionCompensation(t *testing.T) {
	// 20 miles: net mileage 10.625, half is 5.3125, plus pickup 4.
	b := Compute(Input{Mileage: 20, IsLarge: true, Tips: dec("7")})
	if got := b.RejectionCompensation(); !got.Equal(dec("9.3125")) {
		t.Fatalf("RejectionCompensation = %s, want 9.3125", got)
	}
}

func TestDisplayRoundsToCents(t *testing.T) {
	d := Compute(Input{Mileage: 20, IsLarge: true}).Display()
	if d.PlatformCommission != "1.88" {
		t.Errorf("commission display = %s", d.PlatformCommission)
	}
	if d.DriverTotal != "41.63" {
		t.Errorf("driver total display = %s", d.DriverTotal)
	}
	if d.BuyerPortion != "21.75" {
		t.Errorf("buyer display = %s", d.BuyerPortion)
	}
}
