// README: Settlement persistence contract and the in-memory implementation.
package settlement

import (
	"context"
	"sync"

	"marketpace/internal/types"
)

type Store interface {
	// Create inserts a new record. It returns ErrAlreadySettled when a record
	// for the delivery id exists.
	Create(ctx context.Context, r *Record) error
	Get(ctx context.Context, deliveryID types.ID) (*Record, error)
	Save(ctx context.Context, r *Record) error
	// CommitLedger writes the entries and the record in one unit.
	CommitLedger(ctx context.Context, r *Record, entries []LedgerEntry) error
	Ledger(ctx context.Context, deliveryID types.ID) ([]LedgerEntry, error)
}

type MemoryStore struct {
	mu      sync.Mutex
	records map[types.ID]*Record
	ledger  map[types.ID][]LedgerEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[types.ID]*Record),
		ledger:  make(map[types.ID][]LedgerEntry),
	}
}

func (m *MemoryStore) Create(ctx context.Context, r *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[r.DeliveryID]; ok {
		return ErrAlreadySettled
	}
	m.records[r.DeliveryID] = r.Clone()
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, deliveryID types.ID) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[deliveryID]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

func (m *MemoryStore) Save(ctx context.Context, r *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[r.DeliveryID]; !ok {
		return ErrNotFound
	}
	m.records[r.DeliveryID] = r.Clone()
	return nil
}

func (m *MemoryStore) CommitLedger(ctx context.Context, r *Record, entries []LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[r.DeliveryID]; !ok {
		return ErrNotFound
	}
	if len(m.ledger[r.DeliveryID]) > 0 {
		return ErrAlreadySettled
	}
	m.records[r.DeliveryID] = r.Clone()
	m.ledger[r.DeliveryID] = append([]LedgerEntry(nil), entries...)
	return nil
}

func (m *MemoryStore) Ledger(ctx context.Context, deliveryID types.ID) ([]LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]LedgerEntry(nil), m.ledger[deliveryID]...), nil
}
