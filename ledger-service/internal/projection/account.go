package projection

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/eaglebank/ledger/ledger-service/internal/domain"
	"github.com/eaglebank/ledger/ledger-service/internal/eventstore"
	"github.com/eaglebank/ledger/ledger-service/internal/readstore"
	"github.com/eaglebank/ledger/shared/models"
)

// transactionNamespace derives transaction row ids from record ids, so a
// replayed movement overwrites its own row.
var transactionNamespace = uuid.MustParse("9a3c6e1d-2f47-4b8a-8e15-7d0c3b64f2a9")

// AccountProjection keeps the account rows and one transaction row per
// movement.
type AccountProjection struct {
	rows         tracked[models.AccountView]
	transactions readstore.Store[models.TransactionView]
}

func NewAccountProjection(
	accounts readstore.Store[models.AccountView],
	transactions readstore.Store[models.TransactionView],
	store eventstore.EventStore,
) *AccountProjection {
	p := &AccountProjection{transactions: transactions}
	p.rows = tracked[models.AccountView]{
		store:   accounts,
		events:  store,
		version: func(v models.AccountView) int64 { return v.Version },
		fold:    p.fold,
	}
	return p
}

func (p *AccountProjection) Name() string { return "accounts" }

func (p *AccountProjection) EventTypes() []string {
	return []string{
		domain.AccountOpened{}.EventType(),
		domain.FundsDeposited{}.EventType(),
		domain.FundsWithdrawn{}.EventType(),
		domain.AccountClosed{}.EventType(),
	}
}

func (p *AccountProjection) Apply(ctx context.Context, env eventstore.Envelope) (string, error) {
	id, err := entityID(env)
	if err != nil {
		return "", err
	}
	return p.rows.apply(ctx, id, env)
}

func (p *AccountProjection) fold(ctx context.Context, row models.AccountView, env eventstore.Envelope) (models.AccountView, error) {
	switch e := env.Event.(type) {
	case domain.AccountOpened:
		row = models.AccountView{
			ID:             e.AccountID.String(),
			CustomerID:     e.CustomerID.String(),
			Name:           e.AccountName,
			AccountNumber:  e.AccountNumber,
			SortCode:       e.SortCode,
			Balance:        decimal.Zero,
			OverdraftLimit: e.OverdraftLimit,
			OpenedAt:       e.At,
		}
	case domain.FundsDeposited:
		row.Balance = row.Balance.Add(e.Amount)
		if err := p.recordMovement(ctx, env, models.TransactionCredit, e.Amount, e.Description, e.Reference, row); err != nil {
			return row, err
		}
	case domain.FundsWithdrawn:
		row.Balance = row.Balance.Sub(e.Amount)
		if err := p.recordMovement(ctx, env, models.TransactionDebit, e.Amount, e.Description, e.Reference, row); err != nil {
			return row, err
		}
	case domain.AccountClosed:
		row.IsClosed = true
	default:
		return row, fmt.Errorf("accounts projection cannot apply %s", env.Event.EventType())
	}
	row.UpdatedAt = env.Event.OccurredAt()
	row.Version = env.Version
	return row, nil
}

func (p *AccountProjection) recordMovement(
	ctx context.Context,
	env eventstore.Envelope,
	txType models.TransactionType,
	amount decimal.Decimal,
	description, reference string,
	account models.AccountView,
) error {
	id := uuid.NewSHA1(transactionNamespace, []byte(env.RecordID)).String()
	return p.transactions.Upsert(ctx, id, models.TransactionView{
		ID:           id,
		AccountID:    account.ID,
		Type:         txType,
		Amount:       amount,
		Description:  description,
		BalanceAfter: account.Balance,
		Reference:    reference,
		OccurredAt:   env.Event.OccurredAt(),
		Version:      env.Version,
	})
}
