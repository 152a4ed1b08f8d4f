package cqrs

import "github.com/google/uuid"

type GetAccountQuery struct {
	AccountID uuid.UUID
}

type ListCustomerAccountsQuery struct {
	CustomerID uuid.UUID
}

type ListTransactionsQuery struct {
	AccountID uuid.UUID
}

type GetTransferQuery struct {
	TransferID uuid.UUID
}

type GetCustomerQuery struct {
	CustomerID uuid.UUID
}

type ListLedgerEntriesQuery struct {
	AccountID uuid.UUID
}
