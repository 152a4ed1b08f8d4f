package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/eaglebank/ledger/shared/cqrs"
	"github.com/eaglebank/ledger/shared/middleware"
	"github.com/eaglebank/ledger/shared/models"
)

// CustomerCommander defines the write-side operations used by CustomerHandler.
type CustomerCommander interface {
	CreateCustomer(context.Context, cqrs.CreateCustomerCommand) (uuid.UUID, error)
	UpdateCustomer(context.Context, cqrs.UpdateCustomerCommand) error
}

// CustomerQuerier defines the read-side operations used by CustomerHandler.
type CustomerQuerier interface {
	GetCustomer(context.Context, cqrs.GetCustomerQuery) (*models.CustomerView, error)
	ListCustomerAccounts(context.Context, cqrs.ListCustomerAccountsQuery) ([]models.AccountView, error)
}

type CustomerHandler struct {
	commands CustomerCommander
	queries  CustomerQuerier
}

type CustomerRequest struct {
	FirstName string `json:"firstName" validate:"required,max=100"`
	LastName  string `json:"lastName" validate:"required,max=100"`
	Email     string `json:"email" validate:"required,email"`
}

type ListAccountsResponse struct {
	Accounts []models.AccountView `json:"accounts"`
}

func NewCustomerHandler(commands CustomerCommander, queries CustomerQuerier) *CustomerHandler {
	return &CustomerHandler{commands: commands, queries: queries}
}

func (h *CustomerHandler) CreateCustomer(c *gin.Context) {
	var req CustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if violations := middleware.ValidateRequest(req); violations != nil {
		middleware.RespondWithValidationError(c, violations)
		return
	}

	id, err := h.commands.CreateCustomer(c.Request.Context(), cqrs.CreateCustomerCommand{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
	})
	if err != nil {
		respondWithDomainError(c, err, "Failed to create customer")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": id.String()})
}

func (h *CustomerHandler) GetCustomer(c *gin.Context) {
	id, ok := pathID(c, "customerId")
	if !ok {
		return
	}
	view, err := h.queries.GetCustomer(c.Request.Context(), cqrs.GetCustomerQuery{CustomerID: id})
	if err != nil {
		respondWithDomainError(c, err, "Failed to get customer")
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *CustomerHandler) UpdateCustomer(c *gin.Context) {
	id, ok := pathID(c, "customerId")
	if !ok {
		return
	}
	var req CustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if violations := middleware.ValidateRequest(req); violations != nil {
		middleware.RespondWithValidationError(c, violations)
		return
	}

	err := h.commands.UpdateCustomer(c.Request.Context(), cqrs.UpdateCustomerCommand{
		CustomerID: id,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Email:      req.Email,
	})
	if err != nil {
		respondWithDomainError(c, err, "Failed to update customer")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *CustomerHandler) ListAccounts(c *gin.Context) {
	id, ok := pathID(c, "customerId")
	if !ok {
		return
	}
	views, err := h.queries.ListCustomerAccounts(c.Request.Context(), cqrs.ListCustomerAccountsQuery{CustomerID: id})
	if err != nil {
		respondWithDomainError(c, err, "Failed to list accounts")
		return
	}
	if views == nil {
		views = []models.AccountView{}
	}
	c.JSON(http.StatusOK, ListAccountsResponse{Accounts: views})
}
