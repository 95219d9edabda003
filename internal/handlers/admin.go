package handlers

import (
	"net/http"

	"github.com/tropicaldog17/networth/internal/services"
)

type AdminHandler struct {
	ledger services.LedgerService
}

func NewAdminHandler(ledger services.LedgerService) *AdminHandler {
	return &AdminHandler{ledger: ledger}
}

// HandleRecalculate handles POST /api/admin/recalculate
// @Summary Rebuild every position
// @Description Replays the ledger of every portfolio. Individual failures are counted, not fatal.
// @Tags admin
// @Produce json
// @Success 200 {object} models.RecalculationSummary
// @Failure 500 {object} map[string]string
// @Router /admin/recalculate [post]
func (h *AdminHandler) HandleRecalculate(w http.ResponseWriter, r *http.Request) {
	summary, err := h.ledger.RecalculateAllPortfolios(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
