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

type TransferCommander interface {
	InitiateTransfer(context.Context, cqrs.InitiateTransferCommand) (uuid.UUID, error)
}

type TransferQuerier interface {
	GetTransfer(context.Context, cqrs.GetTransferQuery) (*models.TransferView, error)
}

type TransferHandler struct {
	commands TransferCommander
	queries  TransferQuerier
}

type TransferRequest struct {
	SourceAccountID      string          `json:"sourceAccountId" validate:"required,uuid"`
	DestinationAccountID string          `json:"destinationAccountId" validate:"required,uuid,nefield=SourceAccountID"`
	Amount               decimal.Decimal `json:"amount"`
	Description          string          `json:"description" validate:"max=255"`
}

func NewTransferHandler(commands TransferCommander, queries TransferQuerier) *TransferHandler {
	return &TransferHandler{commands: commands, queries: queries}
}

// InitiateTransfer accepts the transfer; the saga settles it asynchronously.
func (h *TransferHandler) InitiateTransfer(c *gin.Context) {
	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if violations := middleware.ValidateRequest(req); violations != nil {
		middleware.RespondWithValidationError(c, violations)
		return
	}

	id, err := h.commands.InitiateTransfer(c.Request.Context(), cqrs.InitiateTransferCommand{
		SourceAccountID:      uuid.MustParse(req.SourceAccountID),
		DestinationAccountID: uuid.MustParse(req.DestinationAccountID),
		Amount:               req.Amount,
		Description:          req.Description,
	})
	if err != nil {
		respondWithDomainError(c, err, "Failed to initiate transfer")
		return
	}

	c.JSON(http.StatusAccepted, AcceptedResponse{TransferID: id.String()})
}

func (h *TransferHandler) GetTransfer(c *gin.Context) {
	id, ok := pathID(c, "transferId")
	if !ok {
		return
	}
	view, err := h.queries.GetTransfer(c.Request.Context(), cqrs.GetTransferQuery{TransferID: id})
	if err != nil {
		respondWithDomainError(c, err, "Failed to get transfer")
		return
	}
	c.JSON(http.StatusOK, view)
}
