package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/eaglebank/ledger/shared/cqrs"
	"github.com/eaglebank/ledger/shared/middleware"
	"github.com/eaglebank/ledger/shared/models"
)

// AccountCommander defines the write-side operations used by AccountHandler.
type AccountCommander interface {
	OpenAccount(context.Context, cqrs.OpenAccountCommand) (uuid.UUID, error)
	Deposit(context.Context, cqrs.DepositCommand) (uuid.UUID, error)
	Withdraw(context.Context, cqrs.WithdrawCommand) (uuid.UUID, error)
	CloseAccount(context.Context, cqrs.CloseAccountCommand) error
}

// AccountQuerier defines the read-side operations used by AccountHandler.
type AccountQuerier interface {
	GetAccount(context.Context, cqrs.GetAccountQuery) (*models.AccountView, error)
	ListTransactions(context.Context, cqrs.ListTransactionsQuery) ([]models.TransactionView, error)
}

// AccountHandler handles account-related HTTP requests.
type AccountHandler struct {
	commands AccountCommander
	queries  AccountQuerier
}

type OpenAccountRequest struct {
	CustomerID     string          `json:"customerId" validate:"required,uuid"`
	Name           string          `json:"name" validate:"required,max=100"`
	OverdraftLimit decimal.Decimal `json:"overdraftLimit"`
}

// MovementRequest is the body of a deposit or withdrawal.
type MovementRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" validate:"max=255"`
}

type ListTransactionsResponse struct {
	Transactions []models.TransactionView `json:"transactions"`
}

// AcceptedResponse points at the transfer that will carry out the request.
type AcceptedResponse struct {
	TransferID string `json:"transferId"`
}

func NewAccountHandler(commands AccountCommander, queries AccountQuerier) *AccountHandler {
	return &AccountHandler{commands: commands, queries: queries}
}

func (h *AccountHandler) OpenAccount(c *gin.Context) {
	var req OpenAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if violations := middleware.ValidateRequest(req); violations != nil {
		middleware.RespondWithValidationError(c, violations)
		return
	}

	id, err := h.commands.OpenAccount(c.Request.Context(), cqrs.OpenAccountCommand{
		CustomerID:     uuid.MustParse(req.CustomerID),
		Name:           req.Name,
		OverdraftLimit: req.OverdraftLimit,
	})
	if err != nil {
		respondWithDomainError(c, err, "Failed to open account")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": id.String()})
}

func (h *AccountHandler) GetAccount(c *gin.Context) {
	id, ok := pathID(c, "accountId")
	if !ok {
		return
	}
	view, err := h.queries.GetAccount(c.Request.Context(), cqrs.GetAccountQuery{AccountID: id})
	if err != nil {
		respondWithDomainError(c, err, "Failed to get account")
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *AccountHandler) Deposit(c *gin.Context) {
	id, req, ok := bindMovement(c)
	if !ok {
		return
	}
	transferID, err := h.commands.Deposit(c.Request.Context(), cqrs.DepositCommand{
		AccountID:   id,
		Amount:      req.Amount,
		Description: req.Description,
	})
	if err != nil {
		respondWithDomainError(c, err, "Failed to deposit")
		return
	}
	c.JSON(http.StatusAccepted, AcceptedResponse{TransferID: transferID.String()})
}

func (h *AccountHandler) Withdraw(c *gin.Context) {
	id, req, ok := bindMovement(c)
	if !ok {
		return
	}
	transferID, err := h.commands.Withdraw(c.Request.Context(), cqrs.WithdrawCommand{
		AccountID:   id,
		Amount:      req.Amount,
		Description: req.Description,
	})
	if err != nil {
		respondWithDomainError(c, err, "Failed to withdraw")
		return
	}
	c.JSON(http.StatusAccepted, AcceptedResponse{TransferID: transferID.String()})
}

func (h *AccountHandler) CloseAccount(c *gin.Context) {
	id, ok := pathID(c, "accountId")
	if !ok {
		return
	}
	if err := h.commands.CloseAccount(c.Request.Context(), cqrs.CloseAccountCommand{AccountID: id}); err != nil {
		respondWithDomainError(c, err, "Failed to close account")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AccountHandler) ListTransactions(c *gin.Context) {
	id, ok := pathID(c, "accountId")
	if !ok {
		return
	}
	views, err := h.queries.ListTransactions(c.Request.Context(), cqrs.ListTransactionsQuery{AccountID: id})
	if err != nil {
		respondWithDomainError(c, err, "Failed to list transactions")
		return
	}
	if views == nil {
		views = []models.TransactionView{}
	}
	c.JSON(http.StatusOK, ListTransactionsResponse{Transactions: views})
}

func bindMovement(c *gin.Context) (uuid.UUID, MovementRequest, bool) {
	var req MovementRequest
	id, ok := pathID(c, "accountId")
	if !ok {
		return id, req, false
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return id, req, false
	}
	if violations := middleware.ValidateRequest(req); violations != nil {
		middleware.RespondWithValidationError(c, violations)
		return id, req, false
	}
	return id, req, true
}
