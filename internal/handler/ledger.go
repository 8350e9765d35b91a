package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"stockbot/internal/models"
	"stockbot/internal/repository"
)

// LedgerHandler serves read-only views over the durable ledgers for
// operator inspection. Nothing here mutates state.
type LedgerHandler struct {
	Repo repository.Repository
}

func (h *LedgerHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1")
	group.GET("/portfolios/:portfolio/trades", h.trades)
	group.GET("/portfolios/:portfolio/ownership", h.ownership)
	group.GET("/portfolios/:portfolio/cash", h.cash)
	group.GET("/portfolios/:portfolio/external-sales", h.externalSales)
}

func (h *LedgerHandler) trades(c *gin.Context) {
	portfolio := c.Param("portfolio")
	var (
		items []models.TradeRecord
		err   error
	)
	if status := strings.TrimSpace(c.Query("status")); status != "" {
		items, err = h.Repo.ListTradesByStatus(c.Request.Context(), portfolio, []models.TradeStatus{models.TradeStatus(status)})
	} else {
		items, err = h.Repo.ListTradesByPortfolio(c.Request.Context(), portfolio)
	}
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"count": len(items)})
}

func (h *LedgerHandler) ownership(c *gin.Context) {
	items, err := h.Repo.ListOwnershipByPortfolio(c.Request.Context(), c.Param("portfolio"))
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"count": len(items)})
}

func (h *LedgerHandler) cash(c *gin.Context) {
	item, err := h.Repo.GetPortfolioCash(c.Request.Context(), c.Param("portfolio"))
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "portfolio cash not initialized", nil)
		return
	}
	Ok(c, item, nil)
}

func (h *LedgerHandler) externalSales(c *gin.Context) {
	items, err := h.Repo.ListUnusedExternalSales(c.Request.Context(), c.Param("portfolio"))
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"count": len(items)})
}
