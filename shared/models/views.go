package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Every row that mirrors an aggregate carries Version, the stream version of
// the last event folded into it. Projections use it to skip redeliveries and
// detect gaps.

// AccountView is the read-optimised projection of an account.
type AccountView struct {
	ID             string          `json:"id"`
	CustomerID     string          `json:"customerId"`
	Name           string          `json:"name"`
	AccountNumber  string          `json:"accountNumber"`
	SortCode       string          `json:"sortCode"`
	Balance        decimal.Decimal `json:"balance"`
	OverdraftLimit decimal.Decimal `json:"overdraftLimit"`
	IsClosed       bool            `json:"isClosed"`
	OpenedAt       time.Time       `json:"openedTimestamp"`
	UpdatedAt      time.Time       `json:"updatedTimestamp"`
	Version        int64           `json:"version"`
}

// CustomerView is the read-optimised projection of a customer.
// AccountIDs is filled from the account partition when the row is read; the
// customers projection never writes it.
type CustomerView struct {
	ID           string    `json:"id"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	Email        string    `json:"email"`
	AccountIDs   []string  `json:"accountIds"`
	AccountCount int       `json:"accountCount"`
	CreatedAt    time.Time `json:"createdTimestamp"`
	UpdatedAt    time.Time `json:"updatedTimestamp"`
	Version      int64     `json:"version"`
}

// TransactionView is one movement on an account. Its ID is derived from the
// event record, so redelivery overwrites the same row.
type TransactionView struct {
	ID           string          `json:"id"`
	AccountID    string          `json:"accountId"`
	Type         TransactionType `json:"type"`
	Amount       decimal.Decimal `json:"amount"`
	Description  string          `json:"description"`
	BalanceAfter decimal.Decimal `json:"balanceAfter"`
	Reference    string          `json:"reference,omitempty"`
	OccurredAt   time.Time       `json:"createdTimestamp"`
	Version      int64           `json:"version"`
}

// TransferView tracks a transfer saga.
type TransferView struct {
	ID                   string          `json:"id"`
	SourceAccountID      string          `json:"sourceAccountId"`
	DestinationAccountID string          `json:"destinationAccountId"`
	Amount               decimal.Decimal `json:"amount"`
	Description          string          `json:"description"`
	Status               string          `json:"status"`
	FailureReason        string          `json:"failureReason,omitempty"`
	InitiatedAt          time.Time       `json:"initiatedTimestamp"`
	UpdatedAt            time.Time       `json:"updatedTimestamp"`
	CompletedAt          *time.Time      `json:"completedTimestamp,omitempty"`
	Version              int64           `json:"version"`
}

// LedgerEntryView is one side of a ledger transaction.
type LedgerEntryView struct {
	ID              string          `json:"id"`
	TransactionID   string          `json:"transactionId"`
	TransactionType string          `json:"transactionType"`
	AccountID       string          `json:"accountId"`
	EntryType       EntryType       `json:"entryType"`
	Amount          decimal.Decimal `json:"amount"`
	Description     string          `json:"description"`
	OccurredAt      time.Time       `json:"createdTimestamp"`
}

// SettlementView summarises the bank's settlement counter-party.
type SettlementView struct {
	ID           string          `json:"id"`
	Balance      decimal.Decimal `json:"balance"`
	TotalDebits  decimal.Decimal `json:"totalDebits"`
	TotalCredits decimal.Decimal `json:"totalCredits"`
	UpdatedAt    time.Time       `json:"updatedTimestamp"`
	Version      int64           `json:"version"`
}
