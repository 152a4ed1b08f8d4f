// Package saga drives transfers across two account streams. Each step runs
// on a change feed event, re-reads the transfer, and does nothing unless the
// transfer is still in the status that step expects.
package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/eaglebank/ledger/ledger-service/internal/domain"
	"github.com/eaglebank/ledger/ledger-service/internal/eventstore"
	"github.com/eaglebank/ledger/ledger-service/internal/metrics"
	"github.com/eaglebank/ledger/shared/logger"
)

// Saga steps, used as metric labels.
const (
	StepDebit    = "debit_source"
	StepCredit   = "credit_destination"
	StepComplete = "complete"
)

type TransferSaga struct {
	repos   eventstore.Repositories
	log     *logger.Logger
	metrics *metrics.Collector
}

func NewTransferSaga(repos eventstore.Repositories, log *logger.Logger, m *metrics.Collector) *TransferSaga {
	return &TransferSaga{repos: repos, log: log, metrics: m}
}

func (s *TransferSaga) Name() string { return "transfer-saga" }

func (s *TransferSaga) EventTypes() []string {
	return []string{
		domain.TransferInitiated{}.EventType(),
		domain.TransferSourceDebited{}.EventType(),
		domain.TransferDestinationCredited{}.EventType(),
	}
}

// Handle runs the step for env. Business failures end the transfer and
// return nil; anything returned is retried by the feed.
func (s *TransferSaga) Handle(ctx context.Context, env eventstore.Envelope) error {
	switch e := env.Event.(type) {
	case domain.TransferInitiated:
		return s.run(ctx, StepDebit, e.TransferID, s.debitSource)
	case domain.TransferSourceDebited:
		return s.run(ctx, StepCredit, e.TransferID, s.creditDestination)
	case domain.TransferDestinationCredited:
		return s.run(ctx, StepComplete, e.TransferID, s.complete)
	}
	return nil
}

func (s *TransferSaga) run(ctx context.Context, step string, id uuid.UUID, fn func(context.Context, *domain.Transfer) error) error {
	start := time.Now()
	t, err := s.repos.Transfers.Load(ctx, id)
	if err == nil {
		err = fn(ctx, t)
	}
	s.metrics.RecordSagaStep(step, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("transfer %s %s: %w", id, step, err)
	}
	return nil
}

func (s *TransferSaga) debitSource(ctx context.Context, t *domain.Transfer) error {
	if t.Status() != domain.TransferStatusInitiated {
		return nil
	}
	src, err := s.repos.Accounts.Load(ctx, t.SourceAccountID())
	if err != nil {
		return err
	}
	ref := domain.DebitReference(t.ID())
	if !src.Applied(ref) {
		if err := src.WithdrawFor(ref, t.Amount(), describe(t)); err != nil {
			if domain.IsDomain(err) {
				return s.fail(ctx, t, "source debit failed: "+err.Error())
			}
			return err
		}
		if err := s.repos.Accounts.Save(ctx, src); err != nil {
			return err
		}
	}
	if err := t.MarkSourceDebited(); err != nil {
		return err
	}
	return s.repos.Transfers.Save(ctx, t)
}

func (s *TransferSaga) creditDestination(ctx context.Context, t *domain.Transfer) error {
	if t.Status() != domain.TransferStatusSourceDebited {
		return nil
	}
	dst, err := s.repos.Accounts.Load(ctx, t.DestinationAccountID())
	if err != nil {
		return err
	}
	ref := domain.CreditReference(t.ID())
	if !dst.Applied(ref) {
		if err := dst.DepositFor(ref, t.Amount(), describe(t)); err != nil {
			if domain.IsDomain(err) {
				return s.compensate(ctx, t, err)
			}
			return err
		}
		if err := s.repos.Accounts.Save(ctx, dst); err != nil {
			return err
		}
	}
	if err := t.MarkDestinationCredited(); err != nil {
		return err
	}
	return s.repos.Transfers.Save(ctx, t)
}

// compensate returns the debited amount to the source. Only a concurrency
// conflict is handed back for retry: the compensation reference keeps a
// second attempt from crediting twice. Any other failure is escalated.
func (s *TransferSaga) compensate(ctx context.Context, t *domain.Transfer, cause error) error {
	src, err := s.repos.Accounts.Load(ctx, t.SourceAccountID())
	if err != nil {
		return err
	}
	ref := domain.CompensationReference(t.ID())
	if !src.Applied(ref) {
		err := src.DepositFor(ref, t.Amount(), "Reversal: "+describe(t))
		if err == nil {
			err = s.repos.Accounts.Save(ctx, src)
		}
		if errors.Is(err, eventstore.ErrConcurrency) {
			return err
		}
		if err != nil {
			return s.compensationFailed(ctx, t, cause, err)
		}
	}
	if err := t.MarkSourceDebitCompensated(); err != nil {
		return err
	}
	return s.fail(ctx, t, "destination credit failed: "+cause.Error())
}

func (s *TransferSaga) compensationFailed(ctx context.Context, t *domain.Transfer, cause, err error) error {
	s.metrics.RecordCompensationFailure()
	s.log.Error("Compensation failed, source account left debited",
		"severity", "critical",
		"transferId", t.ID(),
		"sourceAccountId", t.SourceAccountID(),
		"amount", t.Amount().String(),
		"cause", cause,
		"error", err,
	)
	reason := fmt.Sprintf("destination credit failed: %v; compensation failed: %v; manual reconciliation required", cause, err)
	return s.fail(ctx, t, reason)
}

func (s *TransferSaga) complete(ctx context.Context, t *domain.Transfer) error {
	if t.Status() != domain.TransferStatusDestinationCredited {
		return nil
	}
	if err := s.recordLedger(ctx, t); err != nil {
		return err
	}
	if err := s.settle(ctx, t); err != nil {
		return err
	}
	if err := t.Complete(); err != nil {
		return err
	}
	if err := s.repos.Transfers.Save(ctx, t); err != nil {
		return err
	}
	s.metrics.RecordSagaOutcome(string(domain.TransferStatusCompleted))
	s.log.Info("Transfer completed", "transferId", t.ID(), "amount", t.Amount().String())
	return nil
}

// recordLedger writes the transfer's ledger transaction under an id derived
// from the transfer, so a redelivered step finds it already recorded.
func (s *TransferSaga) recordLedger(ctx context.Context, t *domain.Transfer) error {
	id := domain.LedgerTransactionID(t.ID())
	existing, err := s.repos.LedgerTransactions.Load(ctx, id)
	if err != nil {
		return err
	}
	if existing.Version() >= 0 {
		return nil
	}
	lt, err := domain.RecordLedgerTransaction(id, ledgerType(t), t.SourceAccountID(), t.DestinationAccountID(), t.Amount(), describe(t))
	if err != nil {
		return err
	}
	err = s.repos.LedgerTransactions.Save(ctx, lt)
	if errors.Is(err, eventstore.ErrConcurrency) {
		return nil
	}
	return err
}

// settle mirrors deposits and withdrawals on the settlement aggregate.
func (s *TransferSaga) settle(ctx context.Context, t *domain.Transfer) error {
	deposit := t.SourceAccountID() == domain.SettlementAccountID
	withdrawal := t.DestinationAccountID() == domain.SettlementAccountID
	if !deposit && !withdrawal {
		return nil
	}
	st, err := s.repos.SettlementAccounts.Load(ctx, domain.SettlementAccountID)
	if err != nil {
		return err
	}
	if st.Version() < 0 {
		if st, err = domain.CreateSettlementAccount(); err != nil {
			return err
		}
	}
	ref := domain.SettlementReference(t.ID())
	if st.Applied(ref) {
		return nil
	}
	if deposit {
		err = st.Debit(ref, t.Amount(), describe(t))
	} else {
		err = st.Credit(ref, t.Amount(), describe(t))
	}
	if err != nil {
		return err
	}
	return s.repos.SettlementAccounts.Save(ctx, st)
}

func (s *TransferSaga) fail(ctx context.Context, t *domain.Transfer, reason string) error {
	if err := t.Fail(reason); err != nil {
		return err
	}
	if err := s.repos.Transfers.Save(ctx, t); err != nil {
		return err
	}
	s.metrics.RecordSagaOutcome(string(domain.TransferStatusFailed))
	s.log.Info("Transfer failed", "transferId", t.ID(), "reason", reason)
	return nil
}

func ledgerType(t *domain.Transfer) string {
	switch {
	case t.SourceAccountID() == domain.SettlementAccountID:
		return domain.LedgerTypeDeposit
	case t.DestinationAccountID() == domain.SettlementAccountID:
		return domain.LedgerTypeWithdrawal
	default:
		return domain.LedgerTypeTransfer
	}
}

func describe(t *domain.Transfer) string {
	if t.Description() != "" {
		return t.Description()
	}
	return "Transfer " + t.ID().String()
}
