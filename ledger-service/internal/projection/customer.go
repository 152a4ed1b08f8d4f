package projection

import (
	"context"
	"fmt"

	"github.com/eaglebank/ledger/ledger-service/internal/domain"
	"github.com/eaglebank/ledger/ledger-service/internal/eventstore"
	"github.com/eaglebank/ledger/ledger-service/internal/readstore"
	"github.com/eaglebank/ledger/shared/models"
)

// CustomerProjection keeps customer rows from the customer stream alone. The
// linked account list is read from the accounts partition at query time.
type CustomerProjection struct {
	rows tracked[models.CustomerView]
}

func NewCustomerProjection(customers readstore.Store[models.CustomerView], store eventstore.EventStore) *CustomerProjection {
	p := &CustomerProjection{}
	p.rows = tracked[models.CustomerView]{
		store:   customers,
		events:  store,
		version: func(v models.CustomerView) int64 { return v.Version },
		fold:    p.fold,
	}
	return p
}

func (p *CustomerProjection) Name() string { return "customers" }

func (p *CustomerProjection) EventTypes() []string {
	return []string{
		domain.CustomerCreated{}.EventType(),
		domain.CustomerUpdated{}.EventType(),
	}
}

func (p *CustomerProjection) Apply(ctx context.Context, env eventstore.Envelope) (string, error) {
	id, err := entityID(env)
	if err != nil {
		return "", err
	}
	return p.rows.apply(ctx, id, env)
}

func (p *CustomerProjection) fold(_ context.Context, row models.CustomerView, env eventstore.Envelope) (models.CustomerView, error) {
	switch e := env.Event.(type) {
	case domain.CustomerCreated:
		row = models.CustomerView{
			ID:        e.CustomerID.String(),
			FirstName: e.FirstName,
			LastName:  e.LastName,
			Email:     e.Email,
			CreatedAt: e.At,
		}
	case domain.CustomerUpdated:
		row.FirstName, row.LastName, row.Email = e.FirstName, e.LastName, e.Email
	default:
		return row, fmt.Errorf("customers projection cannot apply %s", env.Event.EventType())
	}
	row.UpdatedAt = env.Event.OccurredAt()
	row.Version = env.Version
	return row, nil
}
