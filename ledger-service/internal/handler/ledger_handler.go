package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eaglebank/ledger/shared/cqrs"
	"github.com/eaglebank/ledger/shared/models"
)

type LedgerQuerier interface {
	ListLedgerEntries(context.Context, cqrs.ListLedgerEntriesQuery) ([]models.LedgerEntryView, error)
	GetSettlement(context.Context) (*models.SettlementView, error)
}

// LedgerHandler serves the double-entry ledger and the settlement summary.
type LedgerHandler struct {
	queries LedgerQuerier
}

type ListLedgerEntriesResponse struct {
	Entries []models.LedgerEntryView `json:"entries"`
}

func NewLedgerHandler(queries LedgerQuerier) *LedgerHandler {
	return &LedgerHandler{queries: queries}
}

func (h *LedgerHandler) ListEntries(c *gin.Context) {
	id, ok := pathID(c, "accountId")
	if !ok {
		return
	}
	entries, err := h.queries.ListLedgerEntries(c.Request.Context(), cqrs.ListLedgerEntriesQuery{AccountID: id})
	if err != nil {
		respondWithDomainError(c, err, "Failed to list ledger entries")
		return
	}
	if entries == nil {
		entries = []models.LedgerEntryView{}
	}
	c.JSON(http.StatusOK, ListLedgerEntriesResponse{Entries: entries})
}

func (h *LedgerHandler) GetSettlement(c *gin.Context) {
	view, err := h.queries.GetSettlement(c.Request.Context())
	if err != nil {
		respondWithDomainError(c, err, "Failed to get settlement account")
		return
	}
	c.JSON(http.StatusOK, view)
}
