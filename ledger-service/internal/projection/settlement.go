package projection

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/eaglebank/ledger/ledger-service/internal/domain"
	"github.com/eaglebank/ledger/ledger-service/internal/eventstore"
	"github.com/eaglebank/ledger/ledger-service/internal/readstore"
	"github.com/eaglebank/ledger/shared/models"
)

type SettlementProjection struct {
	rows tracked[models.SettlementView]
}

func NewSettlementProjection(settlement readstore.Store[models.SettlementView], store eventstore.EventStore) *SettlementProjection {
	return &SettlementProjection{rows: tracked[models.SettlementView]{
		store:   settlement,
		events:  store,
		version: func(v models.SettlementView) int64 { return v.Version },
		fold:    foldSettlementView,
	}}
}

func (p *SettlementProjection) Name() string { return "settlement" }

func (p *SettlementProjection) EventTypes() []string {
	return []string{
		domain.SettlementAccountCreated{}.EventType(),
		domain.SettlementCredited{}.EventType(),
		domain.SettlementDebited{}.EventType(),
	}
}

func (p *SettlementProjection) Apply(ctx context.Context, env eventstore.Envelope) (string, error) {
	id, err := entityID(env)
	if err != nil {
		return "", err
	}
	return p.rows.apply(ctx, id, env)
}

func foldSettlementView(_ context.Context, row models.SettlementView, env eventstore.Envelope) (models.SettlementView, error) {
	switch e := env.Event.(type) {
	case domain.SettlementAccountCreated:
		row = models.SettlementView{
			ID:           e.AccountID.String(),
			Balance:      decimal.Zero,
			TotalDebits:  decimal.Zero,
			TotalCredits: decimal.Zero,
		}
	case domain.SettlementDebited:
		row.Balance = row.Balance.Sub(e.Amount)
		row.TotalDebits = row.TotalDebits.Add(e.Amount)
	case domain.SettlementCredited:
		row.Balance = row.Balance.Add(e.Amount)
		row.TotalCredits = row.TotalCredits.Add(e.Amount)
	default:
		return row, fmt.Errorf("settlement projection cannot apply %s", env.Event.EventType())
	}
	row.UpdatedAt = env.Event.OccurredAt()
	row.Version = env.Version
	return row, nil
}
