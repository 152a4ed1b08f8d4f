package query

import (
	"time"

	"github.com/eaglebank/ledger/ledger-service/internal/domain"
	"github.com/eaglebank/ledger/shared/models"
)

// The builders below render aggregate state in the read model shape for
// rows the projections have not written yet.

func accountView(a *domain.Account) models.AccountView {
	s := a.State()
	return models.AccountView{
		ID:             s.ID.String(),
		CustomerID:     s.CustomerID.String(),
		Name:           s.Name,
		AccountNumber:  s.Number,
		SortCode:       s.SortCode,
		Balance:        s.Balance,
		OverdraftLimit: s.OverdraftLimit,
		IsClosed:       s.IsClosed,
		OpenedAt:       s.OpenedAt,
		UpdatedAt:      s.UpdatedAt,
		Version:        a.Version(),
	}
}

func customerView(c *domain.Customer) models.CustomerView {
	s := c.State()
	return models.CustomerView{
		ID:         s.ID.String(),
		FirstName:  s.FirstName,
		LastName:   s.LastName,
		Email:      s.Email,
		AccountIDs: []string{},
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
		Version:    c.Version(),
	}
}

func transferView(t *domain.Transfer) models.TransferView {
	s := t.State()
	v := models.TransferView{
		ID:                   s.ID.String(),
		SourceAccountID:      s.SourceAccountID.String(),
		DestinationAccountID: s.DestinationAccountID.String(),
		Amount:               s.Amount,
		Description:          s.Description,
		Status:               string(s.Status),
		FailureReason:        s.FailureReason,
		InitiatedAt:          s.InitiatedAt,
		UpdatedAt:            s.UpdatedAt,
		Version:              t.Version(),
	}
	if !s.CompletedAt.IsZero() {
		v.CompletedAt = ptr(s.CompletedAt)
	}
	return v
}

func settlementView(st *domain.SettlementAccount) models.SettlementView {
	s := st.State()
	return models.SettlementView{
		ID:           s.ID.String(),
		Balance:      s.Balance,
		TotalDebits:  s.TotalDebits,
		TotalCredits: s.TotalCredits,
		UpdatedAt:    s.UpdatedAt,
		Version:      st.Version(),
	}
}

func ptr(t time.Time) *time.Time { return &t }
