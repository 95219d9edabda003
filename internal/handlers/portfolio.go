package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/tropicaldog17/networth/internal/models"
	"github.com/tropicaldog17/networth/internal/services"
)

type PortfolioHandler struct {
	portfolios services.PortfolioService
	history    services.HistoryService
}

func NewPortfolioHandler(portfolios services.PortfolioService, history services.HistoryService) *PortfolioHandler {
	return &PortfolioHandler{portfolios: portfolios, history: history}
}

// HandlePortfolios handles collection-level operations for portfolios.
// @Summary List or create portfolios
// @Tags portfolios
// @Accept json
// @Produce json
// @Success 200 {array} models.Portfolio
// @Failure 400 {object} map[string]string
// @Router /portfolios [get]
// @Router /portfolios [post]
func (h *PortfolioHandler) HandlePortfolios(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		list, err := h.portfolios.ListPortfolios(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	case http.MethodPost:
		var p models.Portfolio
		if err := decodeJSON(r, &p); err != nil {
			writeError(w, err)
			return
		}
		if err := h.portfolios.CreatePortfolio(r.Context(), &p); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, &p)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleSummary handles GET /api/portfolios/{id}/summary
// @Summary Value a portfolio
// @Description Live valuation of every open position in the settlement currency
// @Tags portfolios
// @Produce json
// @Param id path string true "Portfolio ID"
// @Param refresh query bool false "Bypass the quote cache"
// @Success 200 {object} models.PortfolioSummary
// @Failure 404 {object} map[string]string
// @Router /portfolios/{id}/summary [get]
func (h *PortfolioHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.portfolios.GetSummary(r.Context(), mux.Vars(r)["id"], boolParam(r, "refresh"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// HandleAllocation handles GET /api/portfolios/{id}/allocation
// @Summary Asset allocation by class
// @Tags portfolios
// @Produce json
// @Param id path string true "Portfolio ID"
// @Success 200 {array} models.AllocationEntry
// @Failure 404 {object} map[string]string
// @Router /portfolios/{id}/allocation [get]
func (h *PortfolioHandler) HandleAllocation(w http.ResponseWriter, r *http.Request) {
	alloc, err := h.portfolios.GetAllocation(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alloc)
}

// HandleHistory handles GET /api/portfolios/{id}/history
// @Summary Daily net-worth series
// @Description One point per calendar day ending today, from snapshots when they cover the window, else rebuilt from the ledger
// @Tags portfolios
// @Produce json
// @Param id path string true "Portfolio ID"
// @Param days query int false "Window length, 1 to 1825 (default 30)"
// @Param refresh query bool false "Bypass the quote cache"
// @Success 200 {object} models.NetWorthHistory
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /portfolios/{id}/history [get]
func (h *PortfolioHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r, "days", 30)
	if err != nil {
		writeError(w, err)
		return
	}
	history, err := h.history.GetHistory(r.Context(), mux.Vars(r)["id"], days, boolParam(r, "refresh"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// HandleSnapshot handles POST /api/portfolios/{id}/snapshots
// @Summary Persist today's net worth
// @Tags portfolios
// @Produce json
// @Param id path string true "Portfolio ID"
// @Success 201 {object} models.NetWorthSnapshot
// @Failure 404 {object} map[string]string
// @Router /portfolios/{id}/snapshots [post]
func (h *PortfolioHandler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.history.SaveSnapshot(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}
