package projection

import (
	"context"
	"fmt"

	"github.com/eaglebank/ledger/ledger-service/internal/domain"
	"github.com/eaglebank/ledger/ledger-service/internal/eventstore"
	"github.com/eaglebank/ledger/ledger-service/internal/readstore"
	"github.com/eaglebank/ledger/shared/models"
)

type TransferProjection struct {
	rows tracked[models.TransferView]
}

func NewTransferProjection(transfers readstore.Store[models.TransferView], store eventstore.EventStore) *TransferProjection {
	return &TransferProjection{rows: tracked[models.TransferView]{
		store:   transfers,
		events:  store,
		version: func(v models.TransferView) int64 { return v.Version },
		fold:    foldTransferView,
	}}
}

func (p *TransferProjection) Name() string { return "transfers" }

func (p *TransferProjection) EventTypes() []string {
	return []string{
		domain.TransferInitiated{}.EventType(),
		domain.TransferSourceDebited{}.EventType(),
		domain.TransferDestinationCredited{}.EventType(),
		domain.TransferSourceDebitCompensated{}.EventType(),
		domain.TransferCompleted{}.EventType(),
		domain.TransferFailed{}.EventType(),
	}
}

func (p *TransferProjection) Apply(ctx context.Context, env eventstore.Envelope) (string, error) {
	id, err := entityID(env)
	if err != nil {
		return "", err
	}
	return p.rows.apply(ctx, id, env)
}

func foldTransferView(_ context.Context, row models.TransferView, env eventstore.Envelope) (models.TransferView, error) {
	switch e := env.Event.(type) {
	case domain.TransferInitiated:
		row = models.TransferView{
			ID:                   e.TransferID.String(),
			SourceAccountID:      e.SourceAccountID.String(),
			DestinationAccountID: e.DestinationAccountID.String(),
			Amount:               e.Amount,
			Description:          e.Description,
			Status:               string(domain.TransferStatusInitiated),
			InitiatedAt:          e.At,
		}
	case domain.TransferSourceDebited:
		row.Status = string(domain.TransferStatusSourceDebited)
	case domain.TransferDestinationCredited:
		row.Status = string(domain.TransferStatusDestinationCredited)
	case domain.TransferSourceDebitCompensated:
		row.Status = string(domain.TransferStatusSourceDebitCompensated)
	case domain.TransferCompleted:
		row.Status = string(domain.TransferStatusCompleted)
		at := e.At
		row.CompletedAt = &at
	case domain.TransferFailed:
		row.Status = string(domain.TransferStatusFailed)
		row.FailureReason = e.Reason
	default:
		return row, fmt.Errorf("transfers projection cannot apply %s", env.Event.EventType())
	}
	row.UpdatedAt = env.Event.OccurredAt()
	row.Version = env.Version
	return row, nil
}
