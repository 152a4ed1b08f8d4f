package models

// Read store partitions.
const (
	PartitionAccount     = "account"
	PartitionCustomer    = "customer"
	PartitionTransaction = "transaction"
	PartitionTransfer    = "transfer"
	PartitionLedger      = "ledger"
	PartitionSettlement  = "settlement"
)

// TransactionType is the direction of a movement as seen by the account.
type TransactionType string

const (
	TransactionCredit TransactionType = "Credit"
	TransactionDebit  TransactionType = "Debit"
)

// EntryType is the side of a double-entry ledger posting.
type EntryType string

const (
	EntryDebit  EntryType = "Debit"
	EntryCredit EntryType = "Credit"
)
