package readstore

import (
	"context"

	goredis "github.com/redis/go-redis/v9"

	"github.com/eaglebank/ledger/shared/models"
)

// Store is a keyed read model collection. Rows are replaced whole; the
// projection that owns a partition is its only writer, and each row is
// written from a single stream.
type Store[T any] interface {
	Get(ctx context.Context, id string) (T, bool, error)
	Upsert(ctx context.Context, id string, row T) error
	// Query returns the rows matching filter ordered by id. A nil filter
	// matches everything.
	Query(ctx context.Context, filter func(T) bool) ([]T, error)
	// ListBy returns the rows whose owner is owner, ordered by id. It fails
	// on a store built without an owner function.
	ListBy(ctx context.Context, owner string) ([]T, error)
}

// Owner names the entity a row belongs to, such as the account of a
// transaction. It must not change between upserts of the same row.
type Owner[T any] func(row T) string

func viewKey(partition, id string) string { return partition + ":view:" + id }

func indexKey(partition string) string { return partition + ":index" }

func ownerKey(partition, owner string) string { return partition + ":by-owner:" + owner }

// Stores holds one store per read model partition.
type Stores struct {
	Accounts     Store[models.AccountView]
	Customers    Store[models.CustomerView]
	Transactions Store[models.TransactionView]
	Transfers    Store[models.TransferView]
	Ledger       Store[models.LedgerEntryView]
	Settlement   Store[models.SettlementView]
}

func accountOwner(v models.AccountView) string         { return v.CustomerID }
func transactionOwner(v models.TransactionView) string { return v.AccountID }
func ledgerOwner(v models.LedgerEntryView) string      { return v.AccountID }

func NewMemoryStores() Stores {
	return Stores{
		Accounts:     NewMemoryStore[models.AccountView](accountOwner),
		Customers:    NewMemoryStore[models.CustomerView](nil),
		Transactions: NewMemoryStore[models.TransactionView](transactionOwner),
		Transfers:    NewMemoryStore[models.TransferView](nil),
		Ledger:       NewMemoryStore[models.LedgerEntryView](ledgerOwner),
		Settlement:   NewMemoryStore[models.SettlementView](nil),
	}
}

func NewRedisStores(client *goredis.Client) Stores {
	return Stores{
		Accounts:     NewRedisStore[models.AccountView](client, models.PartitionAccount, accountOwner),
		Customers:    NewRedisStore[models.CustomerView](client, models.PartitionCustomer, nil),
		Transactions: NewRedisStore[models.TransactionView](client, models.PartitionTransaction, transactionOwner),
		Transfers:    NewRedisStore[models.TransferView](client, models.PartitionTransfer, nil),
		Ledger:       NewRedisStore[models.LedgerEntryView](client, models.PartitionLedger, ledgerOwner),
		Settlement:   NewRedisStore[models.SettlementView](client, models.PartitionSettlement, nil),
	}
}
