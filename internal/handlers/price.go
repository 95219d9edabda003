package handlers

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	apperrors "github.com/tropicaldog17/networth/internal/errors"
	"github.com/tropicaldog17/networth/internal/models"
	"github.com/tropicaldog17/networth/internal/services"
)

type PriceHandler struct {
	prices services.PriceService
}

func NewPriceHandler(prices services.PriceService) *PriceHandler {
	return &PriceHandler{prices: prices}
}

type batchQuoteRequest struct {
	Items   []models.PriceRequest `json:"items"`
	Refresh bool                  `json:"refresh"`
}

func assetClassVar(r *http.Request) (models.AssetClass, error) {
	class := models.AssetClass(mux.Vars(r)["class"])
	if !class.Valid() {
		return "", &apperrors.ErrValidation{Field: "asset_class", Message: "unknown asset class " + string(class)}
	}
	return class, nil
}

// HandleQuote handles GET /api/quotes/{class}/{symbol}
// @Summary Get a quote
// @Description Current price of a symbol, served from cache unless refresh is set
// @Tags quotes
// @Produce json
// @Param class path string true "Asset class (crypto, us_stock, tw_stock, fiat, liability)"
// @Param symbol path string true "Symbol"
// @Param refresh query bool false "Bypass the cache"
// @Success 200 {object} models.Quote
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 502 {object} map[string]string
// @Router /quotes/{class}/{symbol} [get]
func (h *PriceHandler) HandleQuote(w http.ResponseWriter, r *http.Request) {
	class, err := assetClassVar(r)
	if err != nil {
		writeError(w, err)
		return
	}
	q, err := h.prices.GetPrice(r.Context(), mux.Vars(r)["symbol"], class, boolParam(r, "refresh"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// maxBatchItems bounds one batch request; uncached items are paced upstream.
const maxBatchItems = 100

// HandleBatch handles POST /api/quotes/batch
// @Summary Get many quotes
// @Description Prices every item; failures come back with source "error" instead of failing the request
// @Tags quotes
// @Accept json
// @Produce json
// @Param request body batchQuoteRequest true "Items to price"
// @Success 200 {object} map[string]models.Quote
// @Failure 400 {object} map[string]string
// @Router /quotes/batch [post]
func (h *PriceHandler) HandleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchQuoteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if len(req.Items) == 0 {
		writeError(w, &apperrors.ErrValidation{Field: "items", Message: "must not be empty"})
		return
	}
	if len(req.Items) > maxBatchItems {
		writeError(w, &apperrors.ErrValidation{Field: "items", Message: fmt.Sprintf("at most %d items per request", maxBatchItems)})
		return
	}
	writeJSON(w, http.StatusOK, h.prices.GetPricesBatch(r.Context(), req.Items, req.Refresh))
}

// HandleHistory handles GET /api/quotes/{class}/{symbol}/history
// @Summary Get price history
// @Tags quotes
// @Produce json
// @Param class path string true "Asset class"
// @Param symbol path string true "Symbol"
// @Param timeframe query string false "1W, 1M, 3M, 6M, 1Y or 5Y (default 1M)"
// @Success 200 {array} models.HistoricalPoint
// @Failure 400 {object} map[string]string
// @Router /quotes/{class}/{symbol}/history [get]
func (h *PriceHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	class, err := assetClassVar(r)
	if err != nil {
		writeError(w, err)
		return
	}
	timeframe := models.Timeframe(r.URL.Query().Get("timeframe"))
	if timeframe == "" {
		timeframe = models.Timeframe1M
	}
	points, err := h.prices.GetHistoricalPrices(r.Context(), mux.Vars(r)["symbol"], class, timeframe)
	if err != nil {
		writeError(w, err)
		return
	}
	if points == nil {
		points = []models.HistoricalPoint{}
	}
	writeJSON(w, http.StatusOK, points)
}

// HandleDetail handles GET /api/quotes/{class}/{symbol}/detail
// @Summary Get market statistics
// @Description 52-week range and 7d/14d/30d/60d/1y percentage changes
// @Tags quotes
// @Produce json
// @Param class path string true "Asset class"
// @Param symbol path string true "Symbol"
// @Success 200 {object} models.MarketDetail
// @Failure 404 {object} map[string]string
// @Router /quotes/{class}/{symbol}/detail [get]
func (h *PriceHandler) HandleDetail(w http.ResponseWriter, r *http.Request) {
	class, err := assetClassVar(r)
	if err != nil {
		writeError(w, err)
		return
	}
	detail, err := h.prices.GetMarketDetail(r.Context(), mux.Vars(r)["symbol"], class)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// HandleSearch handles GET /api/search
// @Summary Search symbols
// @Tags quotes
// @Produce json
// @Param q query string true "Query"
// @Param asset_class query string false "Asset class or all (default all)"
// @Success 200 {array} models.SearchResult
// @Router /search [get]
func (h *PriceHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	class := models.AssetClass(r.URL.Query().Get("asset_class"))
	if class == "" {
		class = models.AssetClassAll
	}
	if class != models.AssetClassAll && !class.Valid() {
		writeError(w, &apperrors.ErrValidation{Field: "asset_class", Message: "unknown asset class " + string(class)})
		return
	}
	results, err := h.prices.SearchSymbol(r.Context(), r.URL.Query().Get("q"), class)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}
