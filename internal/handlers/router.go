package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/tropicaldog17/networth/internal/logger"
	"github.com/tropicaldog17/networth/internal/services"
)

// Services bundles what the HTTP surface needs.
type Services struct {
	Prices     services.PriceService
	FX         services.ExchangeRateService
	Ledger     services.LedgerService
	Portfolios services.PortfolioService
	History    services.HistoryService
	// Health reports storage reachability; nil means always healthy.
	Health func() error
}

// NewRouter wires every route under /api plus /health.
func NewRouter(svc Services, log *zap.Logger) http.Handler {
	log = logger.OrNop(log)

	prices := NewPriceHandler(svc.Prices)
	fx := NewFXHandler(svc.FX)
	portfolios := NewPortfolioHandler(svc.Portfolios, svc.History)
	transactions := NewTransactionHandler(svc.Ledger)
	admin := NewAdminHandler(svc.Ledger)

	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		if svc.Health != nil {
			if err := svc.Health(); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "networth"})
	}).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/quotes/batch", prices.HandleBatch).Methods(http.MethodPost)
	api.HandleFunc("/quotes/{class}/{symbol}", prices.HandleQuote).Methods(http.MethodGet)
	api.HandleFunc("/quotes/{class}/{symbol}/history", prices.HandleHistory).Methods(http.MethodGet)
	api.HandleFunc("/quotes/{class}/{symbol}/detail", prices.HandleDetail).Methods(http.MethodGet)
	api.HandleFunc("/search", prices.HandleSearch).Methods(http.MethodGet)
	api.HandleFunc("/fx/usd", fx.HandleUSDRate).Methods(http.MethodGet)

	api.HandleFunc("/portfolios", portfolios.HandlePortfolios).Methods(http.MethodGet, http.MethodPost)
	api.HandleFunc("/portfolios/{id}/summary", portfolios.HandleSummary).Methods(http.MethodGet)
	api.HandleFunc("/portfolios/{id}/allocation", portfolios.HandleAllocation).Methods(http.MethodGet)
	api.HandleFunc("/portfolios/{id}/history", portfolios.HandleHistory).Methods(http.MethodGet)
	api.HandleFunc("/portfolios/{id}/snapshots", portfolios.HandleSnapshot).Methods(http.MethodPost)
	api.HandleFunc("/portfolios/{id}/transactions", transactions.HandleTransactions).Methods(http.MethodGet, http.MethodPost)
	api.HandleFunc("/transactions/{id}", transactions.HandleTransaction).Methods(http.MethodGet, http.MethodPut, http.MethodDelete)

	api.HandleFunc("/admin/recalculate", admin.HandleRecalculate).Methods(http.MethodPost)

	r.Use(requestLogger(log))
	return cors(r)
}

func requestLogger(log *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Duration("elapsed", time.Since(start)))
		})
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
