package command

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/eaglebank/ledger/ledger-service/internal/domain"
	"github.com/eaglebank/ledger/ledger-service/internal/eventstore"
	"github.com/eaglebank/ledger/ledger-service/internal/metrics"
	"github.com/eaglebank/ledger/shared/cqrs"
	"github.com/eaglebank/ledger/shared/logger"
)

const defaultMaxTries = 5

// Service is the write side. Each command loads the aggregates it needs,
// raises events and saves them; cross-account work is left to the saga.
type Service struct {
	repos    eventstore.Repositories
	log      *logger.Logger
	metrics  *metrics.Collector
	validate *validator.Validate
	maxTries uint
	backOff  func() backoff.BackOff
}

func NewService(repos eventstore.Repositories, log *logger.Logger, m *metrics.Collector) *Service {
	return &Service{
		repos:    repos,
		log:      log,
		metrics:  m,
		validate: validator.New(),
		maxTries: defaultMaxTries,
		backOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 10 * time.Millisecond
			b.MaxInterval = 200 * time.Millisecond
			return b
		},
	}
}

func (s *Service) CreateCustomer(ctx context.Context, cmd cqrs.CreateCustomerCommand) (uuid.UUID, error) {
	if err := s.check(cmd); err != nil {
		return uuid.Nil, err
	}
	c, err := domain.CreateCustomer(uuid.New(), cmd.FirstName, cmd.LastName, cmd.Email)
	if err != nil {
		return uuid.Nil, err
	}
	if err := s.repos.Customers.Save(ctx, c); err != nil {
		return uuid.Nil, err
	}
	s.log.Info("Customer created", "customerId", c.ID())
	return c.ID(), nil
}

func (s *Service) UpdateCustomer(ctx context.Context, cmd cqrs.UpdateCustomerCommand) error {
	if err := s.check(cmd); err != nil {
		return err
	}
	return s.retry(ctx, "update_customer", func() error {
		c, err := s.repos.Customers.Load(ctx, cmd.CustomerID)
		if err != nil {
			return err
		}
		if c.Version() < 0 {
			return domain.NotFound("customer", cmd.CustomerID)
		}
		if err := c.Update(cmd.FirstName, cmd.LastName, cmd.Email); err != nil {
			return err
		}
		return s.repos.Customers.Save(ctx, c)
	})
}

func (s *Service) OpenAccount(ctx context.Context, cmd cqrs.OpenAccountCommand) (uuid.UUID, error) {
	if err := s.check(cmd); err != nil {
		return uuid.Nil, err
	}
	// The unlimited sentinel is reserved for the settlement account.
	if cmd.OverdraftLimit.IsNegative() {
		return uuid.Nil, domain.ErrInvalidOverdraft
	}
	c, err := s.repos.Customers.Load(ctx, cmd.CustomerID)
	if err != nil {
		return uuid.Nil, err
	}
	if c.Version() < 0 {
		return uuid.Nil, domain.NotFound("customer", cmd.CustomerID)
	}
	acct, err := domain.OpenAccount(uuid.New(), cmd.CustomerID, cmd.Name, cmd.OverdraftLimit)
	if err != nil {
		return uuid.Nil, err
	}
	if err := s.repos.Accounts.Save(ctx, acct); err != nil {
		return uuid.Nil, err
	}
	s.log.Info("Account opened", "accountId", acct.ID(), "customerId", cmd.CustomerID)
	return acct.ID(), nil
}

// Deposit starts a transfer from the settlement account and returns its id.
func (s *Service) Deposit(ctx context.Context, cmd cqrs.DepositCommand) (uuid.UUID, error) {
	if err := s.check(cmd); err != nil {
		return uuid.Nil, err
	}
	if err := s.ensureUsable(ctx, cmd.AccountID); err != nil {
		return uuid.Nil, err
	}
	return s.startTransfer(ctx, domain.SettlementAccountID, cmd.AccountID, cmd.Amount, fallback(cmd.Description, "Deposit"))
}

// Withdraw starts a transfer to the settlement account and returns its id.
// Insufficient funds surface as a failed transfer.
func (s *Service) Withdraw(ctx context.Context, cmd cqrs.WithdrawCommand) (uuid.UUID, error) {
	if err := s.check(cmd); err != nil {
		return uuid.Nil, err
	}
	if err := s.ensureUsable(ctx, cmd.AccountID); err != nil {
		return uuid.Nil, err
	}
	return s.startTransfer(ctx, cmd.AccountID, domain.SettlementAccountID, cmd.Amount, fallback(cmd.Description, "Withdrawal"))
}

func (s *Service) CloseAccount(ctx context.Context, cmd cqrs.CloseAccountCommand) error {
	if err := s.check(cmd); err != nil {
		return err
	}
	if cmd.AccountID == domain.SettlementAccountID {
		return domain.Invalid("the settlement account cannot be closed")
	}
	return s.retry(ctx, "close_account", func() error {
		acct, err := s.repos.Accounts.Load(ctx, cmd.AccountID)
		if err != nil {
			return err
		}
		if err := acct.Close(); err != nil {
			return err
		}
		return s.repos.Accounts.Save(ctx, acct)
	})
}

// InitiateTransfer records the intent and returns the transfer id. The
// destination is checked by the saga, which compensates if it cannot be
// credited.
func (s *Service) InitiateTransfer(ctx context.Context, cmd cqrs.InitiateTransferCommand) (uuid.UUID, error) {
	if err := s.check(cmd); err != nil {
		return uuid.Nil, err
	}
	if cmd.SourceAccountID == domain.SettlementAccountID || cmd.DestinationAccountID == domain.SettlementAccountID {
		return uuid.Nil, domain.Invalid("transfers cannot use the settlement account directly")
	}
	if err := s.ensureUsable(ctx, cmd.SourceAccountID); err != nil {
		return uuid.Nil, err
	}
	return s.startTransfer(ctx, cmd.SourceAccountID, cmd.DestinationAccountID, cmd.Amount, cmd.Description)
}

// EnsureSettlementAccount creates the settlement Account and SettlementAccount
// streams if they are missing. Losing a creation race counts as success.
func (s *Service) EnsureSettlementAccount(ctx context.Context) error {
	acct, err := s.repos.Accounts.Load(ctx, domain.SettlementAccountID)
	if err != nil {
		return err
	}
	if acct.Version() < 0 {
		acct, err = domain.OpenAccount(domain.SettlementAccountID, domain.SettlementAccountID, "Settlement", domain.UnlimitedOverdraft)
		if err != nil {
			return err
		}
		if err := s.repos.Accounts.Save(ctx, acct); err != nil && !errors.Is(err, eventstore.ErrConcurrency) {
			return err
		}
	}

	st, err := s.repos.SettlementAccounts.Load(ctx, domain.SettlementAccountID)
	if err != nil {
		return err
	}
	if st.Version() < 0 {
		st, err = domain.CreateSettlementAccount()
		if err != nil {
			return err
		}
		if err := s.repos.SettlementAccounts.Save(ctx, st); err != nil && !errors.Is(err, eventstore.ErrConcurrency) {
			return err
		}
	}
	return nil
}

func (s *Service) startTransfer(ctx context.Context, src, dst uuid.UUID, amount decimal.Decimal, description string) (uuid.UUID, error) {
	t, err := domain.InitiateTransfer(uuid.New(), src, dst, amount, description)
	if err != nil {
		return uuid.Nil, err
	}
	if err := s.repos.Transfers.Save(ctx, t); err != nil {
		return uuid.Nil, err
	}
	s.log.Info("Transfer initiated", "transferId", t.ID(), "source", src, "destination", dst, "amount", amount.String())
	return t.ID(), nil
}

// ensureUsable fails fast on an account that is missing or closed.
func (s *Service) ensureUsable(ctx context.Context, id uuid.UUID) error {
	acct, err := s.repos.Accounts.Load(ctx, id)
	if err != nil {
		return err
	}
	if acct.Version() < 0 {
		return domain.NotFound("account", id)
	}
	if acct.IsClosed() {
		return domain.ErrAccountClosed
	}
	return nil
}

// retry reruns op on concurrency conflicts. The last conflict is returned
// once the tries run out.
func (s *Service) retry(ctx context.Context, command string, op func() error) error {
	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if attempt > 0 {
			s.metrics.RecordCommandRetry(command)
		}
		attempt++
		err := op()
		if err != nil && !errors.Is(err, eventstore.ErrConcurrency) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(s.backOff()), backoff.WithMaxTries(s.maxTries))
	return err
}

func (s *Service) check(cmd any) error {
	err := s.validate.Struct(cmd)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return domain.Invalid("invalid %s: failed %s", fieldErrs[0].Field(), fieldErrs[0].Tag())
	}
	return domain.Invalid("%v", err)
}

func fallback(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
