package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/tropicaldog17/networth/internal/models"
	"github.com/tropicaldog17/networth/internal/services"
)

type TransactionHandler struct {
	ledger services.LedgerService
}

func NewTransactionHandler(ledger services.LedgerService) *TransactionHandler {
	return &TransactionHandler{ledger: ledger}
}

// HandleTransactions handles the ledger of one portfolio.
// @Summary List or record transactions
// @Description Recording a transaction recomputes the affected position and drops snapshots from its date on
// @Tags transactions
// @Accept json
// @Produce json
// @Param id path string true "Portfolio ID"
// @Success 200 {array} models.Transaction
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /portfolios/{id}/transactions [get]
// @Router /portfolios/{id}/transactions [post]
func (h *TransactionHandler) HandleTransactions(w http.ResponseWriter, r *http.Request) {
	portfolioID := mux.Vars(r)["id"]

	switch r.Method {
	case http.MethodGet:
		txs, err := h.ledger.ListTransactions(r.Context(), portfolioID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, txs)
	case http.MethodPost:
		var tx models.Transaction
		if err := decodeJSON(r, &tx); err != nil {
			writeError(w, err)
			return
		}
		tx.PortfolioID = portfolioID
		if err := h.ledger.CreateTransaction(r.Context(), &tx); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, &tx)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleTransaction handles item-level operations for a transaction.
// @Summary Get, edit or delete a transaction
// @Tags transactions
// @Accept json
// @Produce json
// @Param id path string true "Transaction ID"
// @Success 200 {object} models.Transaction
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /transactions/{id} [get]
// @Router /transactions/{id} [put]
// @Router /transactions/{id} [delete]
func (h *TransactionHandler) HandleTransaction(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	switch r.Method {
	case http.MethodGet:
		tx, err := h.ledger.GetTransaction(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, tx)
	case http.MethodPut:
		var update models.TransactionUpdate
		if err := decodeJSON(r, &update); err != nil {
			writeError(w, err)
			return
		}
		tx, err := h.ledger.UpdateTransaction(r.Context(), id, &update)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, tx)
	case http.MethodDelete:
		if err := h.ledger.DeleteTransaction(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
