package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/eaglebank/ledger/shared/utils"
)

// UnlimitedOverdraft disables the overdraft check. Only the settlement
// account uses it.
var UnlimitedOverdraft = decimal.NewFromInt(-1)

// SettlementAccountID is the well-known id shared by the settlement Account
// and the SettlementAccount aggregate.
var SettlementAccountID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

func IsUnlimited(limit decimal.Decimal) bool { return limit.Equal(UnlimitedOverdraft) }

type AccountOpened struct {
	AccountID      uuid.UUID       `json:"accountId"`
	CustomerID     uuid.UUID       `json:"customerId"`
	AccountName    string          `json:"accountName"`
	AccountNumber  string          `json:"accountNumber"`
	SortCode       string          `json:"sortCode"`
	OverdraftLimit decimal.Decimal `json:"overdraftLimit"`
	Meta
}

type FundsDeposited struct {
	AccountID   uuid.UUID       `json:"accountId"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Reference   string          `json:"reference,omitempty"`
	Meta
}

type FundsWithdrawn struct {
	AccountID   uuid.UUID       `json:"accountId"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Reference   string          `json:"reference,omitempty"`
	Meta
}

type AccountClosed struct {
	AccountID uuid.UUID `json:"accountId"`
	Meta
}

func (AccountOpened) EventType() string  { return "AccountOpened" }
func (FundsDeposited) EventType() string { return "FundsDeposited" }
func (FundsWithdrawn) EventType() string { return "FundsWithdrawn" }
func (AccountClosed) EventType() string  { return "AccountClosed" }

type AccountState struct {
	ID             uuid.UUID
	CustomerID     uuid.UUID
	Name           string
	Number         string
	SortCode       string
	Balance        decimal.Decimal
	OverdraftLimit decimal.Decimal
	IsClosed       bool
	OpenedAt       time.Time
	UpdatedAt      time.Time
	// References holds the movement references already applied, so a saga
	// step can tell whether its deposit or withdrawal already happened.
	References map[string]struct{}
}

type Account struct {
	Base[AccountState]
}

// NewAccount returns an empty account bound to id, ready for Load.
func NewAccount(id uuid.UUID) *Account {
	return &Account{Base: newBase(id, foldAccount)}
}

// OpenAccount creates a new account. overdraftLimit is zero or positive, or
// UnlimitedOverdraft.
func OpenAccount(id, customerID uuid.UUID, name string, overdraftLimit decimal.Decimal) (*Account, error) {
	if err := required("account name", name); err != nil {
		return nil, err
	}
	if customerID == uuid.Nil {
		return nil, fmt.Errorf("%w: customer id", ErrRequiredField)
	}
	if overdraftLimit.IsNegative() && !IsUnlimited(overdraftLimit) {
		return nil, ErrInvalidOverdraft
	}
	a := NewAccount(id)
	err := a.raise(AccountOpened{
		AccountID:      id,
		CustomerID:     customerID,
		AccountName:    name,
		AccountNumber:  utils.AccountNumber(id),
		SortCode:       utils.SortCode,
		OverdraftLimit: overdraftLimit,
		Meta:           newMeta(),
	})
	return a, err
}

func (a *Account) CustomerID() uuid.UUID    { return a.state.CustomerID }
func (a *Account) Name() string             { return a.state.Name }
func (a *Account) Number() string           { return a.state.Number }
func (a *Account) Balance() decimal.Decimal { return a.state.Balance }
func (a *Account) IsClosed() bool           { return a.state.IsClosed }

// Applied reports whether a movement with reference was already recorded.
func (a *Account) Applied(reference string) bool {
	_, ok := a.state.References[reference]
	return ok
}

func (a *Account) Deposit(amount decimal.Decimal, description string) error {
	return a.DepositFor("", amount, description)
}

func (a *Account) Withdraw(amount decimal.Decimal, description string) error {
	return a.WithdrawFor("", amount, description)
}

// DepositFor is Deposit tagged with a reference. A non-empty reference may be
// applied only once.
func (a *Account) DepositFor(reference string, amount decimal.Decimal, description string) error {
	if err := a.checkMovement(reference, amount); err != nil {
		return err
	}
	return a.raise(FundsDeposited{
		AccountID:   a.id,
		Amount:      amount,
		Description: description,
		Reference:   reference,
		Meta:        newMeta(),
	})
}

// WithdrawFor is Withdraw tagged with a reference.
func (a *Account) WithdrawFor(reference string, amount decimal.Decimal, description string) error {
	if err := a.checkMovement(reference, amount); err != nil {
		return err
	}
	limit := a.state.OverdraftLimit
	if !IsUnlimited(limit) && a.state.Balance.Sub(amount).LessThan(limit.Neg()) {
		return fmt.Errorf("%w: balance %s, overdraft limit %s, requested %s",
			ErrInsufficientFunds, a.state.Balance, limit, amount)
	}
	return a.raise(FundsWithdrawn{
		AccountID:   a.id,
		Amount:      amount,
		Description: description,
		Reference:   reference,
		Meta:        newMeta(),
	})
}

func (a *Account) Close() error {
	if err := a.ensureOpen(); err != nil {
		return err
	}
	if !a.state.Balance.IsZero() {
		return fmt.Errorf("%w: balance is %s", ErrNonZeroBalance, a.state.Balance)
	}
	return a.raise(AccountClosed{AccountID: a.id, Meta: newMeta()})
}

func (a *Account) checkMovement(reference string, amount decimal.Decimal) error {
	if err := a.ensureOpen(); err != nil {
		return err
	}
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if reference != "" && a.Applied(reference) {
		return fmt.Errorf("%w: %s", ErrAlreadyApplied, reference)
	}
	return nil
}

func (a *Account) ensureOpen() error {
	if !a.Exists() {
		return NotFound("account", a.id)
	}
	if a.state.IsClosed {
		return ErrAccountClosed
	}
	return nil
}

func foldAccount(s AccountState, e Event) (AccountState, error) {
	switch e := e.(type) {
	case AccountOpened:
		s.ID = e.AccountID
		s.CustomerID = e.CustomerID
		s.Name = e.AccountName
		s.Number = e.AccountNumber
		s.SortCode = e.SortCode
		s.Balance = decimal.Zero
		s.OverdraftLimit = e.OverdraftLimit
		s.OpenedAt = e.At
	case FundsDeposited:
		s.Balance = s.Balance.Add(e.Amount)
		s.References = withReference(s.References, e.Reference)
	case FundsWithdrawn:
		s.Balance = s.Balance.Sub(e.Amount)
		s.References = withReference(s.References, e.Reference)
	case AccountClosed:
		s.IsClosed = true
	default:
		return s, unknownEvent(TypeAccount, e)
	}
	s.UpdatedAt = e.OccurredAt()
	return s, nil
}

// withReference adds ref to refs in place, allocating the set on first use.
func withReference(refs map[string]struct{}, ref string) map[string]struct{} {
	if ref == "" {
		return refs
	}
	if refs == nil {
		refs = make(map[string]struct{})
	}
	refs[ref] = struct{}{}
	return refs
}
