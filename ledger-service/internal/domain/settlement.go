package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type SettlementAccountCreated struct {
	AccountID uuid.UUID `json:"accountId"`
	Meta
}

type SettlementCredited struct {
	AccountID   uuid.UUID       `json:"accountId"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Reference   string          `json:"reference,omitempty"`
	Meta
}

type SettlementDebited struct {
	AccountID   uuid.UUID       `json:"accountId"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Reference   string          `json:"reference,omitempty"`
	Meta
}

func (SettlementAccountCreated) EventType() string { return "SettlementAccountCreated" }
func (SettlementCredited) EventType() string       { return "SettlementCredited" }
func (SettlementDebited) EventType() string        { return "SettlementDebited" }

type SettlementState struct {
	ID           uuid.UUID
	Balance      decimal.Decimal
	TotalDebits  decimal.Decimal
	TotalCredits decimal.Decimal
	UpdatedAt    time.Time
	References   map[string]struct{}
}

// SettlementAccount is the bank's own counter-party for cash entering and
// leaving through deposits and withdrawals. Its balance is unbounded.
type SettlementAccount struct {
	Base[SettlementState]
}

func NewSettlementAccount(id uuid.UUID) *SettlementAccount {
	return &SettlementAccount{Base: newBase(id, foldSettlement)}
}

func CreateSettlementAccount() (*SettlementAccount, error) {
	s := NewSettlementAccount(SettlementAccountID)
	err := s.raise(SettlementAccountCreated{AccountID: SettlementAccountID, Meta: newMeta()})
	return s, err
}

func (s *SettlementAccount) Balance() decimal.Decimal { return s.state.Balance }

func (s *SettlementAccount) Applied(reference string) bool {
	_, ok := s.state.References[reference]
	return ok
}

func (s *SettlementAccount) Debit(reference string, amount decimal.Decimal, description string) error {
	if err := s.checkMovement(reference, amount); err != nil {
		return err
	}
	return s.raise(SettlementDebited{
		AccountID: s.id, Amount: amount, Description: description, Reference: reference, Meta: newMeta(),
	})
}

func (s *SettlementAccount) Credit(reference string, amount decimal.Decimal, description string) error {
	if err := s.checkMovement(reference, amount); err != nil {
		return err
	}
	return s.raise(SettlementCredited{
		AccountID: s.id, Amount: amount, Description: description, Reference: reference, Meta: newMeta(),
	})
}

func (s *SettlementAccount) checkMovement(reference string, amount decimal.Decimal) error {
	if !s.Exists() {
		return NotFound("settlement account", s.id)
	}
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if reference != "" && s.Applied(reference) {
		return fmt.Errorf("%w: %s", ErrAlreadyApplied, reference)
	}
	return nil
}

func foldSettlement(s SettlementState, e Event) (SettlementState, error) {
	switch e := e.(type) {
	case SettlementAccountCreated:
		s.ID = e.AccountID
		s.Balance, s.TotalDebits, s.TotalCredits = decimal.Zero, decimal.Zero, decimal.Zero
	case SettlementDebited:
		s.Balance = s.Balance.Sub(e.Amount)
		s.TotalDebits = s.TotalDebits.Add(e.Amount)
		s.References = withReference(s.References, e.Reference)
	case SettlementCredited:
		s.Balance = s.Balance.Add(e.Amount)
		s.TotalCredits = s.TotalCredits.Add(e.Amount)
		s.References = withReference(s.References, e.Reference)
	default:
		return s, unknownEvent(TypeSettlementAccount, e)
	}
	s.UpdatedAt = e.OccurredAt()
	return s, nil
}
