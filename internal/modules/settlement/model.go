// README: Settlement records, payment legs, ledger entries and the settlement state flow.
package settlement

import (
	"time"

	"marketpace/internal/modules/fees"
	"marketpace/internal/types"
)

type Kind string

const (
	KindStandard  Kind = "standard"
	KindRejection Kind = "rejection"
)

type State string

const (
	StateUnsettled        State = "unsettled"
	StateFeeComputed      State = "fee_computed"
	StatePaymentCaptured  State = "payment_captured"
	StateLedgerUpdated    State = "ledger_updated"
	StateRejectionSettled State = "rejection_settled"
)

// AllowedTransitions is the settlement flow for both kinds. A rejection
// settles straight from fee_computed.
var AllowedTransitions = map[State][]State{
	StateUnsettled:       {StateFeeComputed},
	StateFeeComputed:     {StatePaymentCaptured, StateRejectionSettled},
	StatePaymentCaptured: {StateLedgerUpdated},
}

func CanTransition(from, to State) bool {
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (s State) Terminal() bool {
	return s == StateLedgerUpdated || s == StateRejectionSettled
}

type Leg string

const (
	LegDriverPayout Leg = "driver_payout"
	LegBuyerCharge  Leg = "buyer_charge"
	LegSellerCharge Leg = "seller_charge"
	LegBuyerTip     Leg = "buyer_tip"
	LegSellerTip    Leg = "seller_tip"
)

// Delivery is the settlement view of one order on a route.
type Delivery struct {
	ID        types.ID
	RouteID   types.ID
	OrderID   types.ID
	DriverID  types.ID
	BuyerID   types.ID
	SellerID  types.ID
	Mileage   float64
	IsLarge   bool
	BuyerTip  types.Money
	SellerTip types.Money
	Late      bool
	Rejected  bool
}

// Tips is what the driver receives on top of fees.
func (d Delivery) Tips() types.Money {
	return d.BuyerTip.Add(d.SellerTip)
}

func (d Delivery) currency() string {
	for _, m := range []types.Money{d.BuyerTip, d.SellerTip} {
		if m.Currency != "" {
			return m.Currency
		}
	}
	return types.CurrencyUSD
}

func (d Delivery) FeeInput() fees.Input {
	return fees.Input{Mileage: d.Mileage, IsLarge: d.IsLarge, Tips: d.Tips().Decimal()}
}

// Payment is one processor movement. An empty Reference means the leg has
// not been acknowledged yet.
type Payment struct {
	Leg       Leg
	PartyID   types.ID
	Amount    types.Money
	Reference string
}

func (p Payment) Done() bool {
	return p.Reference != ""
}

type Record struct {
	DeliveryID types.ID
	RouteID    types.ID
	OrderID    types.ID
	Kind       Kind
	State      State
	Breakdown  fees.Breakdown
	Payments   []Payment
	Late       bool
	Attempts   int
	LastError  *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (r *Record) Payment(leg Leg) (Payment, bool) {
	for _, p := range r.Payments {
		if p.Leg == leg {
			return p, true
		}
	}
	return Payment{}, false
}

func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Payments = append([]Payment(nil), r.Payments...)
	if r.LastError != nil {
		v := *r.LastError
		cp.LastError = &v
	}
	return &cp
}

const (
	AccountDriver   = "driver"
	AccountBuyer    = "buyer"
	AccountSeller   = "seller"
	AccountPlatform = "platform"
)

// LedgerEntry is signed from the account holder's view: credits positive,
// debits negative.
type LedgerEntry struct {
	ID         types.ID
	DeliveryID types.ID
	Account    string
	PartyID    types.ID
	Amount     types.Money
	Memo       string
	CreatedAt  time.Time
}

// Result is what callers see after a settle call.
type Result struct {
	DeliveryID   types.ID
	Kind         Kind
	State        State
	Breakdown    fees.Breakdown
	DriverPayout types.Money
	BuyerCharge  types.Money
	SellerCharge types.Money
	BuyerTip     types.Money
	SellerTip    types.Money
	Replayed     bool
}

func resultOf(r *Record, replayed bool) Result {
	res := Result{
		DeliveryID: r.DeliveryID,
		Kind:       r.Kind,
		State:      r.State,
		Breakdown:  r.Breakdown,
		Replayed:   replayed,
	}
	for _, p := range r.Payments {
		switch p.Leg {
		case LegDriverPayout:
			res.DriverPayout = p.Amount
		case LegBuyerCharge:
			res.BuyerCharge = p.Amount
		case LegSellerCharge:
			res.SellerCharge = p.Amount
		case LegBuyerTip:
			res.BuyerTip = p.Amount
		case LegSellerTip:
			res.SellerTip = p.Amount
		}
	}
	return res
}
