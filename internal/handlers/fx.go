package handlers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/tropicaldog17/networth/internal/services"
)

type FXHandler struct {
	fx services.ExchangeRateService
}

func NewFXHandler(fx services.ExchangeRateService) *FXHandler {
	return &FXHandler{fx: fx}
}

type usdRateResponse struct {
	Base  string          `json:"base"`
	Quote string          `json:"quote"`
	Rate  decimal.Decimal `json:"rate"`
}

// GET /api/fx/usd?refresh=true
// @Summary Get the USD rate
// @Description Units of settlement currency per USD. Degrades to the configured fallback rate.
// @Tags fx
// @Produce json
// @Param refresh query bool false "Bypass the quote cache"
// @Success 200 {object} usdRateResponse
// @Router /fx/usd [get]
func (h *FXHandler) HandleUSDRate(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, usdRateResponse{
		Base:  "USD",
		Quote: h.fx.SettlementCurrency(),
		Rate:  h.fx.USDRate(r.Context(), boolParam(r, "refresh")),
	})
}
