package command

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"github.com/eaglebank/ledger/ledger-service/internal/domain"
	"github.com/eaglebank/ledger/ledger-service/internal/eventstore"
	"github.com/eaglebank/ledger/ledger-service/internal/metrics"
	"github.com/eaglebank/ledger/shared/cqrs"
	"github.com/eaglebank/ledger/shared/logger"
)

// conflicting fails appends to one stream with a concurrency error the given
// number of times.
type conflicting struct {
	eventstore.EventStore
	mu       sync.Mutex
	streamID string
	left     int
}

func (c *conflicting) AppendEvents(ctx context.Context, streamID string, evs []domain.Event, expected int64) error {
	c.mu.Lock()
	fire := streamID == c.streamID && c.left > 0
	if fire {
		c.left--
	}
	c.mu.Unlock()
	if fire {
		return &eventstore.ConcurrencyError{StreamID: streamID, ExpectedVersion: expected}
	}
	return c.EventStore.AppendEvents(ctx, streamID, evs, expected)
}

type fixture struct {
	svc      *Service
	repos    eventstore.Repositories
	metrics  *metrics.Collector
	conflict *conflicting
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := eventstore.NewStore(eventstore.NewMemoryLog(), eventstore.NewCodec())
	f := &fixture{metrics: metrics.New(), conflict: &conflicting{EventStore: store}}
	f.repos = eventstore.NewRepositories(f.conflict)
	f.svc = NewService(f.repos, logger.Nop(), f.metrics)
	f.svc.backOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return f
}

func (f *fixture) customer(t *testing.T) uuid.UUID {
	t.Helper()
	id, err := f.svc.CreateCustomer(context.Background(), cqrs.CreateCustomerCommand{
		FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com",
	})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	return id
}

func (f *fixture) account(t *testing.T) uuid.UUID {
	t.Helper()
	id, err := f.svc.OpenAccount(context.Background(), cqrs.OpenAccountCommand{
		CustomerID: f.customer(t), Name: "Current",
	})
	if err != nil {
		t.Fatalf("open account: %v", err)
	}
	return id
}

func TestCreateCustomerValidation(t *testing.T) {
	tests := []struct {
		name    string
		cmd     cqrs.CreateCustomerCommand
		wantErr bool
	}{
		{"valid", cqrs.CreateCustomerCommand{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"}, false},
		{"missing first name", cqrs.CreateCustomerCommand{LastName: "Lovelace", Email: "ada@example.com"}, true},
		{"bad email", cqrs.CreateCustomerCommand{FirstName: "Ada", LastName: "Lovelace", Email: "not-an-email"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			id, err := f.svc.CreateCustomer(context.Background(), tt.cmd)
			if tt.wantErr {
				if !domain.IsValidation(err) {
					t.Fatalf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			c, _ := f.repos.Customers.Load(context.Background(), id)
			if c.Version() != 0 {
				t.Errorf("expected version 0, got %d", c.Version())
			}
		})
	}
}

func TestUpdateCustomer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.customer(t)

	err := f.svc.UpdateCustomer(ctx, cqrs.UpdateCustomerCommand{CustomerID: id, FirstName: "Ada", LastName: "King", Email: "ada@example.com"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	c, _ := f.repos.Customers.Load(ctx, id)
	if c.State().LastName != "King" {
		t.Errorf("expected last name King, got %q", c.State().LastName)
	}

	err = f.svc.UpdateCustomer(ctx, cqrs.UpdateCustomerCommand{CustomerID: uuid.New(), FirstName: "A", LastName: "B", Email: "a@example.com"})
	if !domain.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestOpenAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customerID := f.customer(t)

	tests := []struct {
		name     string
		cmd      cqrs.OpenAccountCommand
		checkErr func(error) bool
	}{
		{"unknown customer", cqrs.OpenAccountCommand{CustomerID: uuid.New(), Name: "Current"}, domain.IsNotFound},
		{"missing name", cqrs.OpenAccountCommand{CustomerID: customerID}, domain.IsValidation},
		{"negative overdraft", cqrs.OpenAccountCommand{CustomerID: customerID, Name: "Current", OverdraftLimit: decimal.NewFromInt(-5)}, domain.IsValidation},
		{"unlimited sentinel", cqrs.OpenAccountCommand{CustomerID: customerID, Name: "Current", OverdraftLimit: domain.UnlimitedOverdraft}, domain.IsValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.OpenAccount(ctx, tt.cmd)
			if !tt.checkErr(err) {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}

	id, err := f.svc.OpenAccount(ctx, cqrs.OpenAccountCommand{CustomerID: customerID, Name: "Savings", OverdraftLimit: decimal.NewFromInt(100)})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	acct, _ := f.repos.Accounts.Load(ctx, id)
	if acct.CustomerID() != customerID || acct.Name() != "Savings" {
		t.Errorf("unexpected account state %+v", acct.State())
	}
	if len(acct.Number()) != 8 {
		t.Errorf("expected an 8 digit account number, got %q", acct.Number())
	}
}

func TestDepositAndWithdrawStartSettlementTransfers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acctID := f.account(t)

	depositID, err := f.svc.Deposit(ctx, cqrs.DepositCommand{AccountID: acctID, Amount: decimal.NewFromInt(100)})
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	deposit, _ := f.repos.Transfers.Load(ctx, depositID)
	if deposit.SourceAccountID() != domain.SettlementAccountID || deposit.DestinationAccountID() != acctID {
		t.Errorf("deposit must move from settlement to %s, got %+v", acctID, deposit.State())
	}
	if deposit.Description() != "Deposit" {
		t.Errorf("expected default description, got %q", deposit.Description())
	}
	if deposit.Status() != domain.TransferStatusInitiated {
		t.Errorf("expected initiated, got %s", deposit.Status())
	}

	withdrawID, err := f.svc.Withdraw(ctx, cqrs.WithdrawCommand{AccountID: acctID, Amount: decimal.NewFromInt(30), Description: "ATM"})
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	withdraw, _ := f.repos.Transfers.Load(ctx, withdrawID)
	if withdraw.SourceAccountID() != acctID || withdraw.DestinationAccountID() != domain.SettlementAccountID {
		t.Errorf("withdrawal must move from %s to settlement, got %+v", acctID, withdraw.State())
	}
	if withdraw.Description() != "ATM" {
		t.Errorf("expected description kept, got %q", withdraw.Description())
	}
}

func TestDepositRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	closed := f.account(t)
	if err := f.svc.CloseAccount(ctx, cqrs.CloseAccountCommand{AccountID: closed}); err != nil {
		t.Fatalf("close: %v", err)
	}
	open := f.account(t)

	tests := []struct {
		name     string
		cmd      cqrs.DepositCommand
		checkErr func(error) bool
	}{
		{"zero amount", cqrs.DepositCommand{AccountID: open, Amount: decimal.Zero}, domain.IsValidation},
		{"negative amount", cqrs.DepositCommand{AccountID: open, Amount: decimal.NewFromInt(-1)}, domain.IsValidation},
		{"unknown account", cqrs.DepositCommand{AccountID: uuid.New(), Amount: decimal.NewFromInt(1)}, domain.IsNotFound},
		{"closed account", cqrs.DepositCommand{AccountID: closed, Amount: decimal.NewFromInt(1)}, domain.IsInvariant},
		{"missing account id", cqrs.DepositCommand{Amount: decimal.NewFromInt(1)}, domain.IsValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Deposit(ctx, tt.cmd)
			if !tt.checkErr(err) {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestCloseAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.svc.CloseAccount(ctx, cqrs.CloseAccountCommand{AccountID: uuid.New()}); !domain.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
	if err := f.svc.CloseAccount(ctx, cqrs.CloseAccountCommand{AccountID: domain.SettlementAccountID}); !domain.IsValidation(err) {
		t.Errorf("expected settlement close rejected, got %v", err)
	}

	funded, _ := domain.OpenAccount(uuid.New(), uuid.New(), "Current", decimal.Zero)
	_ = funded.Deposit(decimal.NewFromInt(5), "seed")
	if err := f.repos.Accounts.Save(ctx, funded); err != nil {
		t.Fatalf("save: %v", err)
	}
	err := f.svc.CloseAccount(ctx, cqrs.CloseAccountCommand{AccountID: funded.ID()})
	if !errors.Is(err, domain.ErrNonZeroBalance) {
		t.Errorf("expected non-zero balance error, got %v", err)
	}

	empty := f.account(t)
	if err := f.svc.CloseAccount(ctx, cqrs.CloseAccountCommand{AccountID: empty}); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := f.svc.CloseAccount(ctx, cqrs.CloseAccountCommand{AccountID: empty}); !errors.Is(err, domain.ErrAccountClosed) {
		t.Errorf("expected closing twice to fail, got %v", err)
	}
}

func TestCloseAccountRetriesConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.account(t)
	f.conflict.streamID = f.repos.Accounts.StreamID(id)
	f.conflict.left = 2

	if err := f.svc.CloseAccount(ctx, cqrs.CloseAccountCommand{AccountID: id}); err != nil {
		t.Fatalf("expected retries to succeed, got %v", err)
	}
	acct, _ := f.repos.Accounts.Load(ctx, id)
	if !acct.IsClosed() {
		t.Error("expected account closed")
	}
	expected := `
# HELP ledger_command_retries_total Command attempts repeated after a concurrency conflict
# TYPE ledger_command_retries_total counter
ledger_command_retries_total{command="close_account"} 2
`
	if err := testutil.GatherAndCompare(f.metrics.Registry(), strings.NewReader(expected), "ledger_command_retries_total"); err != nil {
		t.Error(err)
	}
}

func TestRetryGivesUpAfterMaxTries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.account(t)
	f.conflict.streamID = f.repos.Accounts.StreamID(id)
	f.conflict.left = 100

	err := f.svc.CloseAccount(ctx, cqrs.CloseAccountCommand{AccountID: id})
	if !errors.Is(err, eventstore.ErrConcurrency) {
		t.Fatalf("expected concurrency error, got %v", err)
	}
	if used := 100 - f.conflict.left; used != defaultMaxTries {
		t.Errorf("expected %d attempts, got %d", defaultMaxTries, used)
	}
}

func TestInitiateTransfer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	src := f.account(t)
	dst := f.account(t)

	tests := []struct {
		name     string
		cmd      cqrs.InitiateTransferCommand
		checkErr func(error) bool
	}{
		{"same account", cqrs.InitiateTransferCommand{SourceAccountID: src, DestinationAccountID: src, Amount: decimal.NewFromInt(1)}, domain.IsValidation},
		{"zero amount", cqrs.InitiateTransferCommand{SourceAccountID: src, DestinationAccountID: dst}, domain.IsValidation},
		{"unknown source", cqrs.InitiateTransferCommand{SourceAccountID: uuid.New(), DestinationAccountID: dst, Amount: decimal.NewFromInt(1)}, domain.IsNotFound},
		{"settlement source", cqrs.InitiateTransferCommand{SourceAccountID: domain.SettlementAccountID, DestinationAccountID: dst, Amount: decimal.NewFromInt(1)}, domain.IsValidation},
		{"settlement destination", cqrs.InitiateTransferCommand{SourceAccountID: src, DestinationAccountID: domain.SettlementAccountID, Amount: decimal.NewFromInt(1)}, domain.IsValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.InitiateTransfer(ctx, tt.cmd)
			if !tt.checkErr(err) {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}

	// An unknown destination is accepted. The saga fails it later.
	id, err := f.svc.InitiateTransfer(ctx, cqrs.InitiateTransferCommand{SourceAccountID: src, DestinationAccountID: uuid.New(), Amount: decimal.NewFromInt(10)})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	tr, _ := f.repos.Transfers.Load(ctx, id)
	if tr.Status() != domain.TransferStatusInitiated || tr.Version() != 0 {
		t.Errorf("expected a fresh initiated transfer, got %s at %d", tr.Status(), tr.Version())
	}
}

func TestEnsureSettlementAccountIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := f.svc.EnsureSettlementAccount(ctx); err != nil {
			t.Fatalf("ensure #%d: %v", i, err)
		}
	}
	acct, _ := f.repos.Accounts.Load(ctx, domain.SettlementAccountID)
	if acct.Version() != 0 || !domain.IsUnlimited(acct.State().OverdraftLimit) {
		t.Errorf("expected one unlimited settlement account, got version %d limit %s", acct.Version(), acct.State().OverdraftLimit)
	}
	st, _ := f.repos.SettlementAccounts.Load(ctx, domain.SettlementAccountID)
	if st.Version() != 0 {
		t.Errorf("expected settlement aggregate at version 0, got %d", st.Version())
	}
}

func TestEnsureSettlementAccountToleratesRace(t *testing.T) {
	f := newFixture(t)
	f.conflict.streamID = f.repos.Accounts.StreamID(domain.SettlementAccountID)
	f.conflict.left = 1

	if err := f.svc.EnsureSettlementAccount(context.Background()); err != nil {
		t.Fatalf("expected a lost creation race to be ignored, got %v", err)
	}
}
