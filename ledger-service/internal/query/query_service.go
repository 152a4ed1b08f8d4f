package query

import (
	"cmp"
	"context"
	"slices"

	"github.com/google/uuid"

	"github.com/eaglebank/ledger/ledger-service/internal/domain"
	"github.com/eaglebank/ledger/ledger-service/internal/eventstore"
	"github.com/eaglebank/ledger/ledger-service/internal/readstore"
	"github.com/eaglebank/ledger/shared/cqrs"
	"github.com/eaglebank/ledger/shared/logger"
	"github.com/eaglebank/ledger/shared/models"
)

// Service answers reads from the projected rows. Single-entity reads fall
// back to folding the stream when the projection has not caught up yet, so a
// client can read its own write.
type Service struct {
	views readstore.Stores
	repos eventstore.Repositories
	log   *logger.Logger
}

func NewService(views readstore.Stores, repos eventstore.Repositories, log *logger.Logger) *Service {
	return &Service{views: views, repos: repos, log: log}
}

func (s *Service) GetAccount(ctx context.Context, q cqrs.GetAccountQuery) (*models.AccountView, error) {
	row, found, err := s.views.Accounts.Get(ctx, q.AccountID.String())
	if err != nil {
		return nil, err
	}
	if found {
		return &row, nil
	}
	acct, err := s.repos.Accounts.Load(ctx, q.AccountID)
	if err != nil {
		return nil, err
	}
	if acct.Version() < 0 {
		return nil, domain.NotFound("account", q.AccountID)
	}
	s.log.Debug("Account read from event stream", "accountId", q.AccountID)
	view := accountView(acct)
	return &view, nil
}

func (s *Service) ListCustomerAccounts(ctx context.Context, q cqrs.ListCustomerAccountsQuery) ([]models.AccountView, error) {
	if err := s.customerExists(ctx, q.CustomerID); err != nil {
		return nil, err
	}
	return s.views.Accounts.ListBy(ctx, q.CustomerID.String())
}

// ListTransactions returns an account's movements oldest first.
func (s *Service) ListTransactions(ctx context.Context, q cqrs.ListTransactionsQuery) ([]models.TransactionView, error) {
	if _, err := s.GetAccount(ctx, cqrs.GetAccountQuery{AccountID: q.AccountID}); err != nil {
		return nil, err
	}
	rows, err := s.views.Transactions.ListBy(ctx, q.AccountID.String())
	if err != nil {
		return nil, err
	}
	slices.SortFunc(rows, func(a, b models.TransactionView) int { return cmp.Compare(a.Version, b.Version) })
	return rows, nil
}

func (s *Service) GetTransfer(ctx context.Context, q cqrs.GetTransferQuery) (*models.TransferView, error) {
	row, found, err := s.views.Transfers.Get(ctx, q.TransferID.String())
	if err != nil {
		return nil, err
	}
	if found {
		return &row, nil
	}
	t, err := s.repos.Transfers.Load(ctx, q.TransferID)
	if err != nil {
		return nil, err
	}
	if t.Version() < 0 {
		return nil, domain.NotFound("transfer", q.TransferID)
	}
	view := transferView(t)
	return &view, nil
}

// GetCustomer joins the customer row with the accounts that name the customer
// as owner. The row itself carries no account list.
func (s *Service) GetCustomer(ctx context.Context, q cqrs.GetCustomerQuery) (*models.CustomerView, error) {
	view, found, err := s.views.Customers.Get(ctx, q.CustomerID.String())
	if err != nil {
		return nil, err
	}
	if !found {
		c, err := s.repos.Customers.Load(ctx, q.CustomerID)
		if err != nil {
			return nil, err
		}
		if c.Version() < 0 {
			return nil, domain.NotFound("customer", q.CustomerID)
		}
		view = customerView(c)
	}
	accounts, err := s.views.Accounts.ListBy(ctx, view.ID)
	if err != nil {
		return nil, err
	}
	view.AccountIDs = make([]string, 0, len(accounts))
	for _, a := range accounts {
		view.AccountIDs = append(view.AccountIDs, a.ID)
	}
	view.AccountCount = len(view.AccountIDs)
	return &view, nil
}

// ListLedgerEntries returns the double-entry rows touching an account,
// oldest first.
func (s *Service) ListLedgerEntries(ctx context.Context, q cqrs.ListLedgerEntriesQuery) ([]models.LedgerEntryView, error) {
	rows, err := s.views.Ledger.ListBy(ctx, q.AccountID.String())
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(rows, func(a, b models.LedgerEntryView) int { return a.OccurredAt.Compare(b.OccurredAt) })
	return rows, nil
}

func (s *Service) GetSettlement(ctx context.Context) (*models.SettlementView, error) {
	row, found, err := s.views.Settlement.Get(ctx, domain.SettlementAccountID.String())
	if err != nil {
		return nil, err
	}
	if found {
		return &row, nil
	}
	st, err := s.repos.SettlementAccounts.Load(ctx, domain.SettlementAccountID)
	if err != nil {
		return nil, err
	}
	if st.Version() < 0 {
		return nil, domain.NotFound("settlement account", domain.SettlementAccountID)
	}
	view := settlementView(st)
	return &view, nil
}

func (s *Service) customerExists(ctx context.Context, id uuid.UUID) error {
	_, found, err := s.views.Customers.Get(ctx, id.String())
	if err != nil || found {
		return err
	}
	c, err := s.repos.Customers.Load(ctx, id)
	if err != nil {
		return err
	}
	if c.Version() < 0 {
		return domain.NotFound("customer", id)
	}
	return nil
}
