// README: Settlement orchestrator: fees once per delivery, payment legs at most once, then ledger.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"marketpace/internal/modules/fees"
	"marketpace/internal/modules/payment"
	"marketpace/internal/obs"
	"marketpace/internal/types"
)

var (
	ErrNotFound             = errors.New("settlement not found")
	ErrBadRequest           = errors.New("bad request")
	ErrAlreadySettled       = errors.New("delivery already settled")
	ErrSettlementInProgress = errors.New("settlement in progress")
	ErrKindMismatch         = errors.New("settlement kind mismatch")
	ErrPaymentCapture       = errors.New("payment capture failed")
)

// PaymentCaptureError is retryable: call Settle again with the same delivery.
type PaymentCaptureError struct {
	DeliveryID types.ID
	Leg        Leg
	Err        error
}

func (e *PaymentCaptureError) Error() string {
	return fmt.Sprintf("payment capture failed for delivery %s (%s): %v", e.DeliveryID, e.Leg, e.Err)
}

func (e *PaymentCaptureError) Unwrap() error { return e.Err }

func (e *PaymentCaptureError) Is(target error) bool { return target == ErrPaymentCapture }

// Processor moves money. Capture pays out, Charge collects.
type Processor interface {
	Capture(ctx context.Context, amount types.Money, payee types.ID, idempotencyKey string) (payment.Receipt, error)
	Charge(ctx context.Context, amount types.Money, payer types.ID, idempotencyKey string) (payment.Receipt, error)
}

type Service struct {
	store     Store
	processor Processor
	locker    Locker
	log       *zap.Logger
	now       func() time.Time
}

// NewService wires the orchestrator. locker may be nil; store-level
// uniqueness of the delivery id still holds.
func NewService(store Store, processor Processor, locker Locker, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, processor: processor, locker: locker, log: log, now: time.Now}
}

// Settle runs unsettled -> fee_computed -> payment_captured -> ledger_updated.
func (s *Service) Settle(ctx context.Context, d Delivery) (res Result, err error) {
	defer obs.Time(ctx, s.log, "settlement.settle")(&err)
	return s.run(ctx, d, KindStandard)
}

// SettleRejection runs unsettled -> fee_computed -> rejection_settled. The
// driver is compensated, the buyer pays their half and the seller is not charged.
func (s *Service) SettleRejection(ctx context.Context, d Delivery) (res Result, err error) {
	defer obs.Time(ctx, s.log, "settlement.settle_rejection")(&err)
	return s.run(ctx, d, KindRejection)
}

// Get returns the current settlement state for a delivery.
func (s *Service) Get(ctx context.Context, deliveryID types.ID) (*Record, []LedgerEntry, error) {
	rec, err := s.store.Get(ctx, deliveryID)
	if err != nil {
		return nil, nil, err
	}
	entries, err := s.store.Ledger(ctx, deliveryID)
	if err != nil {
		return nil, nil, err
	}
	return rec, entries, nil
}

func (s *Service) run(ctx context.Context, d Delivery, kind Kind) (Result, error) {
	if err := validate(d, kind); err != nil {
		return Result{}, err
	}
	log := s.log.With(zap.String("delivery_id", string(d.ID)), zap.String("kind", string(kind)))

	if s.locker != nil {
		release, ok, err := s.locker.Acquire(ctx, d.ID)
		if err != nil {
			return Result{}, fmt.Errorf("acquire settlement lock: %w", err)
		}
		if !ok {
			return Result{}, ErrSettlementInProgress
		}
		defer release()
	}

	rec, err := s.load(ctx, d, kind)
	if err != nil {
		return Result{}, err
	}
	if rec.Kind != kind {
		return Result{}, fmt.Errorf("%w: delivery %s was settled as %s", ErrKindMismatch, d.ID, rec.Kind)
	}
	if rec.State.Terminal() {
		log.Debug("settlement replayed", zap.String("state", string(rec.State)))
		return resultOf(rec, true), nil
	}

	if rec.State == StateFeeComputed {
		if err := s.collect(ctx, rec); err != nil {
			log.Warn("payment leg failed", zap.Int("attempts", rec.Attempts), zap.Error(err))
			return resultOf(rec, false), err
		}
	}

	from := rec.State
	to := StateLedgerUpdated
	if kind == KindRejection {
		to = StateRejectionSettled
	}
	if !CanTransition(from, to) {
		return Result{}, fmt.Errorf("settlement %s: cannot move %s -> %s", d.ID, from, to)
	}
	rec.State = to
	rec.LastError = nil
	rec.UpdatedAt = s.now()
	if err := s.store.CommitLedger(ctx, rec, s.ledgerEntries(rec, d)); err != nil {
		rec.State = from
		if errors.Is(err, ErrAlreadySettled) {
			cur, gerr := s.store.Get(ctx, d.ID)
			if gerr == nil && cur.State.Terminal() {
				return resultOf(cur, true), nil
			}
		}
		return resultOf(rec, false), fmt.Errorf("commit ledger: %w", err)
	}

	log.Info("delivery settled",
		zap.String("state", string(rec.State)),
		zap.String("driver_payout", resultOf(rec, false).DriverPayout.String()),
	)
	return resultOf(rec, false), nil
}

func validate(d Delivery, kind Kind) error {
	if d.ID == "" || d.DriverID == "" || d.BuyerID == "" {
		return fmt.Errorf("%w: delivery, driver and buyer ids are required", ErrBadRequest)
	}
	if kind == KindStandard && d.SellerID == "" {
		return fmt.Errorf("%w: seller id is required", ErrBadRequest)
	}
	if d.BuyerTip.Amount < 0 || d.SellerTip.Amount < 0 {
		return fmt.Errorf("%w: tips cannot be negative", ErrBadRequest)
	}
	return nil
}

// load returns the stored record, creating it in fee_computed on first use.
// A retry always reuses the stored breakdown.
func (s *Service) load(ctx context.Context, d Delivery, kind Kind) (*Record, error) {
	rec, err := s.store.Get(ctx, d.ID)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	rec = newRecord(d, kind, s.now())
	if err := s.store.Create(ctx, rec); err != nil {
		if errors.Is(err, ErrAlreadySettled) {
			return s.store.Get(ctx, d.ID)
		}
		return nil, err
	}
	return rec, nil
}

func newRecord(d Delivery, kind Kind, now time.Time) *Record {
	b := fees.Compute(d.FeeInput())
	cur := d.currency()
	buyerShare, sellerShare := splitTotal(types.MoneyFromDecimal(b.TotalDeliveryFee, cur))

	rec := &Record{
		DeliveryID: d.ID,
		RouteID:    d.RouteID,
		OrderID:    d.OrderID,
		Kind:       kind,
		State:      StateFeeComputed,
		Breakdown:  b,
		Late:       d.Late,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	switch kind {
	case KindRejection:
		rec.Payments = []Payment{
			{Leg: LegDriverPayout, PartyID: d.DriverID, Amount: types.MoneyFromDecimal(b.RejectionCompensation(), cur)},
			{Leg: LegBuyerCharge, PartyID: d.BuyerID, Amount: buyerShare},
		}
	default:
		rec.Payments = []Payment{
			{Leg: LegDriverPayout, PartyID: d.DriverID, Amount: types.MoneyFromDecimal(b.DriverTotal, cur)},
			{Leg: LegBuyerCharge, PartyID: d.BuyerID, Amount: buyerShare},
			{Leg: LegSellerCharge, PartyID: d.SellerID, Amount: sellerShare},
		}
		// The driver payout already includes tips; each tipper funds their own.
		if d.BuyerTip.Amount > 0 {
			rec.Payments = append(rec.Payments, Payment{Leg: LegBuyerTip, PartyID: d.BuyerID, Amount: d.BuyerTip})
		}
		if d.SellerTip.Amount > 0 {
			rec.Payments = append(rec.Payments, Payment{Leg: LegSellerTip, PartyID: d.SellerID, Amount: d.SellerTip})
		}
	}
	return rec
}

// splitTotal halves a fee in cents. The seller half takes any odd cent so
// the two charges always add up to the total.
func splitTotal(total types.Money) (buyer, seller types.Money) {
	half := total.Amount / 2
	return types.Money{Amount: half, Currency: total.Currency},
		types.Money{Amount: total.Amount - half, Currency: total.Currency}
}

// collect sends every leg that has no reference yet. Each acknowledged leg is
// persisted before the next one so a retry never resends it.
func (s *Service) collect(ctx context.Context, rec *Record) error {
	for i := range rec.Payments {
		p := &rec.Payments[i]
		if p.Done() {
			continue
		}
		ref, err := s.send(ctx, rec.DeliveryID, *p)
		if err != nil {
			rec.Attempts++
			msg := err.Error()
			rec.LastError = &msg
			rec.UpdatedAt = s.now()
			if serr := s.store.Save(ctx, rec); serr != nil {
				s.log.Error("persist failed attempt", zap.String("delivery_id", string(rec.DeliveryID)), zap.Error(serr))
			}
			return &PaymentCaptureError{DeliveryID: rec.DeliveryID, Leg: p.Leg, Err: err}
		}
		p.Reference = ref
		rec.UpdatedAt = s.now()
		if err := s.store.Save(ctx, rec); err != nil {
			return fmt.Errorf("persist %s reference: %w", p.Leg, err)
		}
	}
	if rec.Kind == KindStandard && allDone(rec.Payments) && CanTransition(rec.State, StatePaymentCaptured) {
		rec.State = StatePaymentCaptured
		if err := s.store.Save(ctx, rec); err != nil {
			return fmt.Errorf("persist captured state: %w", err)
		}
	}
	return nil
}

const skippedReference = "none"

func (s *Service) send(ctx context.Context, deliveryID types.ID, p Payment) (string, error) {
	if p.Amount.Amount <= 0 {
		return skippedReference, nil
	}
	if s.processor == nil {
		return "", errors.New("no payment processor configured")
	}
	key := idempotencyKey(deliveryID, p.Leg)
	var (
		rec payment.Receipt
		err error
	)
	if p.Leg == LegDriverPayout {
		rec, err = s.processor.Capture(ctx, p.Amount, p.PartyID, key)
	} else {
		rec, err = s.processor.Charge(ctx, p.Amount, p.PartyID, key)
	}
	if err != nil {
		return "", err
	}
	if !rec.Success {
		return "", errors.New("processor declined")
	}
	if rec.Reference == "" {
		return "", errors.New("processor returned no reference")
	}
	return rec.Reference, nil
}

func idempotencyKey(deliveryID types.ID, leg Leg) string {
	return string(deliveryID) + ":" + string(leg)
}

func allDone(ps []Payment) bool {
	for _, p := range ps {
		if !p.Done() {
			return false
		}
	}
	return true
}

var ledgerAccounts = map[Leg]struct {
	account string
	memo    string
}{
	LegDriverPayout: {AccountDriver, "driver payout"},
	LegBuyerCharge:  {AccountBuyer, "buyer delivery share"},
	LegSellerCharge: {AccountSeller, "seller delivery share"},
	LegBuyerTip:     {AccountBuyer, "buyer tip"},
	LegSellerTip:    {AccountSeller, "seller tip"},
}

// ledgerEntries books one entry per payment leg. The platform entry is the
// balancing remainder, so a delivery's entries always sum to zero.
func (s *Service) ledgerEntries(rec *Record, d Delivery) []LedgerEntry {
	now := s.now()
	cur := d.currency()
	entry := func(key, account string, party types.ID, amount types.Money, memo string) LedgerEntry {
		return LedgerEntry{
			ID:         types.DerivedID(rec.DeliveryID, types.ID(key)),
			DeliveryID: rec.DeliveryID,
			Account:    account,
			PartyID:    party,
			Amount:     amount,
			Memo:       memo,
			CreatedAt:  now,
		}
	}

	out := make([]LedgerEntry, 0, len(rec.Payments)+1)
	var sum int64
	for _, p := range rec.Payments {
		acct, ok := ledgerAccounts[p.Leg]
		if !ok {
			continue
		}
		amount := p.Amount
		if p.Leg != LegDriverPayout {
			amount.Amount = -amount.Amount
		}
		key := acct.account
		if p.Leg == LegBuyerTip || p.Leg == LegSellerTip {
			key = string(p.Leg)
		}
		out = append(out, entry(key, acct.account, p.PartyID, amount, acct.memo))
		sum += amount.Amount
	}

	memo := "platform commission"
	if rec.Kind == KindRejection {
		memo = "rejection net"
	}
	out = append(out, entry(AccountPlatform, AccountPlatform, "", types.Money{Amount: -sum, Currency: cur}, memo))
	return out
}
