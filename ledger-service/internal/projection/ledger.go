package projection

import (
	"context"

	"github.com/eaglebank/ledger/ledger-service/internal/domain"
	"github.com/eaglebank/ledger/ledger-service/internal/eventstore"
	"github.com/eaglebank/ledger/ledger-service/internal/metrics"
	"github.com/eaglebank/ledger/ledger-service/internal/readstore"
	"github.com/eaglebank/ledger/shared/models"
)

// LedgerProjection writes the two entry rows of each ledger transaction,
// keyed by entry id.
type LedgerProjection struct {
	entries readstore.Store[models.LedgerEntryView]
}

func NewLedgerProjection(entries readstore.Store[models.LedgerEntryView]) *LedgerProjection {
	return &LedgerProjection{entries: entries}
}

func (p *LedgerProjection) Name() string { return "ledger" }

func (p *LedgerProjection) EventTypes() []string {
	return []string{domain.LedgerTransactionRecorded{}.EventType()}
}

func (p *LedgerProjection) Apply(ctx context.Context, env eventstore.Envelope) (string, error) {
	e, ok := env.Event.(domain.LedgerTransactionRecorded)
	if !ok {
		return metrics.ResultSkipped, nil
	}
	outcome := metrics.ResultSkipped
	for _, entry := range e.Entries() {
		id := entry.EntryID.String()
		_, found, err := p.entries.Get(ctx, id)
		if err != nil {
			return "", err
		}
		if found {
			continue
		}
		err = p.entries.Upsert(ctx, id, models.LedgerEntryView{
			ID:              id,
			TransactionID:   e.TransactionID.String(),
			TransactionType: e.TransactionType,
			AccountID:       entry.AccountID.String(),
			EntryType:       models.EntryType(entry.EntryType),
			Amount:          entry.Amount,
			Description:     entry.Description,
			OccurredAt:      e.At,
		})
		if err != nil {
			return "", err
		}
		outcome = metrics.ResultApplied
	}
	return outcome, nil
}
