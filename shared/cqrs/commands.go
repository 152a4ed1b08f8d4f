package cqrs

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CreateCustomerCommand struct {
	FirstName string `validate:"required,max=100"`
	LastName  string `validate:"required,max=100"`
	Email     string `validate:"required,email"`
}

type UpdateCustomerCommand struct {
	CustomerID uuid.UUID `validate:"required"`
	FirstName  string    `validate:"required,max=100"`
	LastName   string    `validate:"required,max=100"`
	Email      string    `validate:"required,email"`
}

type OpenAccountCommand struct {
	CustomerID     uuid.UUID `validate:"required"`
	Name           string    `validate:"required,max=100"`
	OverdraftLimit decimal.Decimal
}

// DepositCommand moves money in from the settlement account.
type DepositCommand struct {
	AccountID   uuid.UUID `validate:"required"`
	Amount      decimal.Decimal
	Description string `validate:"max=255"`
}

// WithdrawCommand moves money out to the settlement account.
type WithdrawCommand struct {
	AccountID   uuid.UUID `validate:"required"`
	Amount      decimal.Decimal
	Description string `validate:"max=255"`
}

type CloseAccountCommand struct {
	AccountID uuid.UUID `validate:"required"`
}

type InitiateTransferCommand struct {
	SourceAccountID      uuid.UUID `validate:"required"`
	DestinationAccountID uuid.UUID `validate:"required"`
	Amount               decimal.Decimal
	Description          string `validate:"max=255"`
}
