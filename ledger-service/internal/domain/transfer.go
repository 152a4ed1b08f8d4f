package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransferStatus string

const (
	TransferStatusInitiated              TransferStatus = "Initiated"
	TransferStatusSourceDebited          TransferStatus = "SourceDebited"
	TransferStatusDestinationCredited    TransferStatus = "DestinationCredited"
	TransferStatusSourceDebitCompensated TransferStatus = "SourceDebitCompensated"
	TransferStatusCompleted              TransferStatus = "Completed"
	TransferStatusFailed                 TransferStatus = "Failed"
)

// Terminal reports whether no further transitions are possible.
func (s TransferStatus) Terminal() bool {
	return s == TransferStatusCompleted || s == TransferStatusFailed
}

type TransferInitiated struct {
	TransferID           uuid.UUID       `json:"transferId"`
	SourceAccountID      uuid.UUID       `json:"sourceAccountId"`
	DestinationAccountID uuid.UUID       `json:"destinationAccountId"`
	Amount               decimal.Decimal `json:"amount"`
	Description          string          `json:"description"`
	Meta
}

type TransferSourceDebited struct {
	TransferID uuid.UUID `json:"transferId"`
	Meta
}

type TransferDestinationCredited struct {
	TransferID uuid.UUID `json:"transferId"`
	Meta
}

type TransferSourceDebitCompensated struct {
	TransferID uuid.UUID `json:"transferId"`
	Meta
}

type TransferCompleted struct {
	TransferID uuid.UUID `json:"transferId"`
	Meta
}

type TransferFailed struct {
	TransferID uuid.UUID `json:"transferId"`
	Reason     string    `json:"reason"`
	Meta
}

func (TransferInitiated) EventType() string              { return "TransferInitiated" }
func (TransferSourceDebited) EventType() string          { return "TransferSourceDebited" }
func (TransferDestinationCredited) EventType() string    { return "TransferDestinationCredited" }
func (TransferSourceDebitCompensated) EventType() string { return "TransferSourceDebitCompensated" }
func (TransferCompleted) EventType() string              { return "TransferCompleted" }
func (TransferFailed) EventType() string                 { return "TransferFailed" }

type TransferState struct {
	ID                   uuid.UUID
	SourceAccountID      uuid.UUID
	DestinationAccountID uuid.UUID
	Amount               decimal.Decimal
	Description          string
	Status               TransferStatus
	FailureReason        string
	InitiatedAt          time.Time
	UpdatedAt            time.Time
	CompletedAt          time.Time
}

type Transfer struct {
	Base[TransferState]
}

func NewTransfer(id uuid.UUID) *Transfer {
	return &Transfer{Base: newBase(id, foldTransfer)}
}

func InitiateTransfer(id, sourceID, destinationID uuid.UUID, amount decimal.Decimal, description string) (*Transfer, error) {
	if sourceID == uuid.Nil || destinationID == uuid.Nil {
		return nil, fmt.Errorf("%w: account id", ErrRequiredField)
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if sourceID == destinationID {
		return nil, ErrSameAccount
	}
	t := NewTransfer(id)
	err := t.raise(TransferInitiated{
		TransferID:           id,
		SourceAccountID:      sourceID,
		DestinationAccountID: destinationID,
		Amount:               amount,
		Description:          description,
		Meta:                 newMeta(),
	})
	return t, err
}

func (t *Transfer) Status() TransferStatus          { return t.state.Status }
func (t *Transfer) SourceAccountID() uuid.UUID      { return t.state.SourceAccountID }
func (t *Transfer) DestinationAccountID() uuid.UUID { return t.state.DestinationAccountID }
func (t *Transfer) Amount() decimal.Decimal         { return t.state.Amount }
func (t *Transfer) Description() string             { return t.state.Description }
func (t *Transfer) FailureReason() string           { return t.state.FailureReason }

func (t *Transfer) MarkSourceDebited() error {
	if err := t.expect("mark source debited", TransferStatusInitiated); err != nil {
		return err
	}
	return t.raise(TransferSourceDebited{TransferID: t.id, Meta: newMeta()})
}

func (t *Transfer) MarkDestinationCredited() error {
	if err := t.expect("mark destination credited", TransferStatusSourceDebited); err != nil {
		return err
	}
	return t.raise(TransferDestinationCredited{TransferID: t.id, Meta: newMeta()})
}

func (t *Transfer) MarkSourceDebitCompensated() error {
	if err := t.expect("mark source debit compensated", TransferStatusSourceDebited); err != nil {
		return err
	}
	return t.raise(TransferSourceDebitCompensated{TransferID: t.id, Meta: newMeta()})
}

func (t *Transfer) Complete() error {
	if err := t.expect("complete", TransferStatusDestinationCredited); err != nil {
		return err
	}
	return t.raise(TransferCompleted{TransferID: t.id, Meta: newMeta()})
}

// Fail is legal before the destination is credited. Failing straight from
// SourceDebited is reserved for a compensation that could not be applied.
func (t *Transfer) Fail(reason string) error {
	if err := t.expect("fail",
		TransferStatusInitiated,
		TransferStatusSourceDebited,
		TransferStatusSourceDebitCompensated,
	); err != nil {
		return err
	}
	return t.raise(TransferFailed{TransferID: t.id, Reason: reason, Meta: newMeta()})
}

func (t *Transfer) expect(action string, allowed ...TransferStatus) error {
	if !t.Exists() {
		return NotFound("transfer", t.id)
	}
	for _, s := range allowed {
		if t.state.Status == s {
			return nil
		}
	}
	return fmt.Errorf("%w: cannot %s transfer in status %s", ErrInvalidTransition, action, t.state.Status)
}

func foldTransfer(s TransferState, e Event) (TransferState, error) {
	switch e := e.(type) {
	case TransferInitiated:
		s.ID = e.TransferID
		s.SourceAccountID = e.SourceAccountID
		s.DestinationAccountID = e.DestinationAccountID
		s.Amount = e.Amount
		s.Description = e.Description
		s.Status = TransferStatusInitiated
		s.InitiatedAt = e.At
	case TransferSourceDebited:
		s.Status = TransferStatusSourceDebited
	case TransferDestinationCredited:
		s.Status = TransferStatusDestinationCredited
	case TransferSourceDebitCompensated:
		s.Status = TransferStatusSourceDebitCompensated
	case TransferCompleted:
		s.Status = TransferStatusCompleted
		s.CompletedAt = e.At
	case TransferFailed:
		s.Status = TransferStatusFailed
		s.FailureReason = e.Reason
	default:
		return s, unknownEvent(TypeTransfer, e)
	}
	s.UpdatedAt = e.OccurredAt()
	return s, nil
}

// Movement references tag the account movements a transfer causes.
func DebitReference(transferID uuid.UUID) string {
	return "transfer:" + transferID.String() + ":debit"
}

func CreditReference(transferID uuid.UUID) string {
	return "transfer:" + transferID.String() + ":credit"
}

func CompensationReference(transferID uuid.UUID) string {
	return "transfer:" + transferID.String() + ":compensation"
}

func SettlementReference(transferID uuid.UUID) string {
	return "transfer:" + transferID.String() + ":settlement"
}
