package eventstore

import (
	"context"

	"github.com/google/uuid"

	"github.com/eaglebank/ledger/ledger-service/internal/domain"
)

// Repository binds an aggregate type to its stream naming and the store.
type Repository[T domain.Aggregate] struct {
	store         EventStore
	aggregateType string
	newFn         func(uuid.UUID) T
}

func NewRepository[T domain.Aggregate](store EventStore, aggregateType string, newFn func(uuid.UUID) T) *Repository[T] {
	return &Repository[T]{store: store, aggregateType: aggregateType, newFn: newFn}
}

func (r *Repository[T]) StreamID(id uuid.UUID) string {
	return domain.StreamID(r.aggregateType, id)
}

// Load hydrates the aggregate. A stream that does not exist yields an
// aggregate at version -1, which callers treat as not found.
func (r *Repository[T]) Load(ctx context.Context, id uuid.UUID) (T, error) {
	agg := r.newFn(id)
	history, err := r.store.LoadEvents(ctx, r.StreamID(id))
	if err != nil {
		return agg, err
	}
	if err := agg.Load(history); err != nil {
		return agg, err
	}
	return agg, nil
}

// Save appends pending events with the aggregate's version as the expected
// version. Concurrency errors are returned unchanged.
func (r *Repository[T]) Save(ctx context.Context, agg T) error {
	pending := agg.Uncommitted()
	if len(pending) == 0 {
		return nil
	}
	if err := r.store.AppendEvents(ctx, r.StreamID(agg.ID()), pending, agg.Version()); err != nil {
		return err
	}
	agg.MarkCommitted()
	return nil
}

// Repositories groups the repository for every aggregate type.
type Repositories struct {
	Accounts           *Repository[*domain.Account]
	Customers          *Repository[*domain.Customer]
	Transfers          *Repository[*domain.Transfer]
	LedgerTransactions *Repository[*domain.LedgerTransaction]
	SettlementAccounts *Repository[*domain.SettlementAccount]
}

func NewRepositories(store EventStore) Repositories {
	return Repositories{
		Accounts:           NewRepository(store, domain.TypeAccount, domain.NewAccount),
		Customers:          NewRepository(store, domain.TypeCustomer, domain.NewCustomer),
		Transfers:          NewRepository(store, domain.TypeTransfer, domain.NewTransfer),
		LedgerTransactions: NewRepository(store, domain.TypeLedgerTransaction, domain.NewLedgerTransaction),
		SettlementAccounts: NewRepository(store, domain.TypeSettlementAccount, domain.NewSettlementAccount),
	}
}
