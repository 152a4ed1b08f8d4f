package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EntryType string

const (
	EntryDebit  EntryType = "Debit"
	EntryCredit EntryType = "Credit"
)

// Ledger transaction types.
const (
	LedgerTypeTransfer   = "Transfer"
	LedgerTypeDeposit    = "Deposit"
	LedgerTypeWithdrawal = "Withdrawal"
)

// ledgerNamespace seeds deterministic ledger transaction ids.
var ledgerNamespace = uuid.MustParse("5b0f2a34-3c1e-4a57-9d0e-6c1f4b2a9e10")

// LedgerTransactionID is the id of the ledger transaction recorded for a
// transfer. Recording is idempotent because the id is fixed.
func LedgerTransactionID(transferID uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(ledgerNamespace, transferID[:])
}

type LedgerEntry struct {
	EntryID     uuid.UUID
	AccountID   uuid.UUID
	EntryType   EntryType
	Amount      decimal.Decimal
	Description string
}

type LedgerTransactionRecorded struct {
	TransactionID   uuid.UUID       `json:"transactionId"`
	TransactionType string          `json:"transactionType"`
	DebitAccountID  uuid.UUID       `json:"debitAccountId"`
	CreditAccountID uuid.UUID       `json:"creditAccountId"`
	Amount          decimal.Decimal `json:"amount"`
	Description     string          `json:"description"`
	DebitEntryID    uuid.UUID       `json:"debitEntryId"`
	CreditEntryID   uuid.UUID       `json:"creditEntryId"`
	Meta
}

func (LedgerTransactionRecorded) EventType() string { return "LedgerTransactionRecorded" }

// Entries returns the balanced debit/credit pair the event records.
func (e LedgerTransactionRecorded) Entries() [2]LedgerEntry {
	return [2]LedgerEntry{
		{EntryID: e.DebitEntryID, AccountID: e.DebitAccountID, EntryType: EntryDebit, Amount: e.Amount, Description: e.Description},
		{EntryID: e.CreditEntryID, AccountID: e.CreditAccountID, EntryType: EntryCredit, Amount: e.Amount, Description: e.Description},
	}
}

type LedgerTransactionState struct {
	ID              uuid.UUID
	Type            string
	DebitAccountID  uuid.UUID
	CreditAccountID uuid.UUID
	Amount          decimal.Decimal
	Description     string
	Entries         []LedgerEntry
	RecordedAt      time.Time
}

type LedgerTransaction struct {
	Base[LedgerTransactionState]
}

func NewLedgerTransaction(id uuid.UUID) *LedgerTransaction {
	return &LedgerTransaction{Base: newBase(id, foldLedger)}
}

func RecordLedgerTransaction(id uuid.UUID, txType string, debitAccountID, creditAccountID uuid.UUID, amount decimal.Decimal, description string) (*LedgerTransaction, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if debitAccountID == creditAccountID {
		return nil, ErrSameAccount
	}
	if err := required("transaction type", txType); err != nil {
		return nil, err
	}
	if err := required("description", description); err != nil {
		return nil, err
	}
	lt := NewLedgerTransaction(id)
	err := lt.raise(LedgerTransactionRecorded{
		TransactionID:   id,
		TransactionType: txType,
		DebitAccountID:  debitAccountID,
		CreditAccountID: creditAccountID,
		Amount:          amount,
		Description:     description,
		DebitEntryID:    uuid.New(),
		CreditEntryID:   uuid.New(),
		Meta:            newMeta(),
	})
	return lt, err
}

func (l *LedgerTransaction) Entries() []LedgerEntry {
	out := make([]LedgerEntry, len(l.state.Entries))
	copy(out, l.state.Entries)
	return out
}

func foldLedger(s LedgerTransactionState, e Event) (LedgerTransactionState, error) {
	switch e := e.(type) {
	case LedgerTransactionRecorded:
		if len(s.Entries) > 0 {
			return s, fmt.Errorf("ledger transaction %s recorded twice", e.TransactionID)
		}
		s.ID = e.TransactionID
		s.Type = e.TransactionType
		s.DebitAccountID = e.DebitAccountID
		s.CreditAccountID = e.CreditAccountID
		s.Amount = e.Amount
		s.Description = e.Description
		pair := e.Entries()
		s.Entries = pair[:]
		s.RecordedAt = e.At
	default:
		return s, unknownEvent(TypeLedgerTransaction, e)
	}
	return s, nil
}
