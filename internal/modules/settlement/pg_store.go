// README: Settlement store backed by PostgreSQL.
package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"marketpace/internal/types"
)

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Create(ctx context.Context, r *Record) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO settlements (
			delivery_id, route_id, order_id, kind, state, breakdown,
			late, attempts, last_error, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (delivery_id) DO NOTHING`,
		string(r.DeliveryID), string(r.RouteID), string(r.OrderID),
		string(r.Kind), string(r.State), r.Breakdown,
		r.Late, r.Attempts, r.LastError, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadySettled
	}
	if err := upsertPayments(ctx, tx, r); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PGStore) Get(ctx context.Context, deliveryID types.ID) (*Record, error) {
	var r Record
	err := s.db.QueryRow(ctx, `
		SELECT delivery_id, route_id, order_id, kind, state, breakdown,
		       late, attempts, last_error, created_at, updated_at
		FROM settlements
		WHERE delivery_id = $1`, string(deliveryID),
	).Scan(
		&r.DeliveryID, &r.RouteID, &r.OrderID, &r.Kind, &r.State, &r.Breakdown,
		&r.Late, &r.Attempts, &r.LastError, &r.CreatedAt, &r.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT leg, party_id, amount, currency, reference
		FROM settlement_payments
		WHERE delivery_id = $1
		ORDER BY seq`, string(deliveryID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.Leg, &p.PartyID, &p.Amount.Amount, &p.Amount.Currency, &p.Reference); err != nil {
			return nil, err
		}
		r.Payments = append(r.Payments, p)
	}
	return &r, rows.Err()
}

func (s *PGStore) Save(ctx context.Context, r *Record) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := updateRecord(ctx, tx, r); err != nil {
		return err
	}
	if err := upsertPayments(ctx, tx, r); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PGStore) CommitLedger(ctx context.Context, r *Record, entries []LedgerEntry) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var current State
	err = tx.QueryRow(ctx, `SELECT state FROM settlements WHERE delivery_id = $1 FOR UPDATE`,
		string(r.DeliveryID)).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if current.Terminal() {
		return ErrAlreadySettled
	}

	if err := updateRecord(ctx, tx, r); err != nil {
		return err
	}
	if err := upsertPayments(ctx, tx, r); err != nil {
		return err
	}
	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`
			INSERT INTO ledger_entries (id, delivery_id, account, party_id, amount, currency, memo, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			string(e.ID), string(e.DeliveryID), e.Account, string(e.PartyID),
			e.Amount.Amount, currencyOrDefault(e.Amount.Currency), e.Memo, e.CreatedAt,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert ledger entries: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PGStore) Ledger(ctx context.Context, deliveryID types.ID) ([]LedgerEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, delivery_id, account, party_id, amount, currency, memo, created_at
		FROM ledger_entries
		WHERE delivery_id = $1
		ORDER BY created_at, account`, string(deliveryID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.ID, &e.DeliveryID, &e.Account, &e.PartyID,
			&e.Amount.Amount, &e.Amount.Currency, &e.Memo, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func updateRecord(ctx context.Context, tx pgx.Tx, r *Record) error {
	tag, err := tx.Exec(ctx, `
		UPDATE settlements
		SET state = $1, attempts = $2, last_error = $3, updated_at = $4
		WHERE delivery_id = $5`,
		string(r.State), r.Attempts, r.LastError, r.UpdatedAt, string(r.DeliveryID),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// upsertPayments never clears a stored reference.
func upsertPayments(ctx context.Context, tx pgx.Tx, r *Record) error {
	for i, p := range r.Payments {
		_, err := tx.Exec(ctx, `
			INSERT INTO settlement_payments (delivery_id, leg, seq, party_id, amount, currency, reference)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (delivery_id, leg) DO UPDATE
			SET reference = CASE WHEN settlement_payments.reference = '' THEN EXCLUDED.reference
			                     ELSE settlement_payments.reference END`,
			string(r.DeliveryID), string(p.Leg), i, string(p.PartyID),
			p.Amount.Amount, currencyOrDefault(p.Amount.Currency), p.Reference,
		)
		if err != nil {
			return fmt.Errorf("upsert payment %s: %w", p.Leg, err)
		}
	}
	return nil
}

func currencyOrDefault(c string) string {
	if c == "" {
		return types.CurrencyUSD
	}
	return c
}
