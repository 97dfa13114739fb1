package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/networth-tracker/internal/models"
)

// handleGetBalances returns the aggregated portfolio view.
func (s *Server) handleGetBalances(w http.ResponseWriter, r *http.Request) {
	portfolio, err := s.portfolioService.ComputePortfolio(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, portfolio)
}

// handleRefreshBalances enqueues a full refresh of all tracked
// balances. Checks already in flight coalesce, so hammering this
// endpoint does not multiply work.
func (s *Server) handleRefreshBalances(w http.ResponseWriter, r *http.Request) {
	enqueued, err := s.scheduler.EnqueueAllChecks(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"enqueued": enqueued,
	})
}

// handleGetAccountTotals returns per-account holdings totals.
func (s *Server) handleGetAccountTotals(w http.ResponseWriter, r *http.Request) {
	totals, err := s.portfolioService.EthValueByAccount(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": totals,
	})
}

// handleGetNetworth returns the recorded networth time series.
func (s *Server) handleGetNetworth(w http.ResponseWriter, r *http.Request) {
	snapshots, err := s.portfolioService.NetworthTimeSeries(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"snapshots": snapshots,
	})
}

// handleListOffchain returns all manual off-chain entries.
func (s *Server) handleListOffchain(w http.ResponseWriter, r *http.Request) {
	entries, err := s.offchainService.List(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
	})
}

// setOffchainRequest is the request body for creating or updating an
// off-chain entry
type setOffchainRequest struct {
	ID        int64   `json:"id,omitempty"`
	AccountID int64   `json:"account_id"`
	Name      string  `json:"name"`
	EthValue  float64 `json:"eth_value"`
}

// handleSetOffchain creates or updates a manual off-chain entry.
func (s *Server) handleSetOffchain(w http.ResponseWriter, r *http.Request) {
	var req setOffchainRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "Invalid request body", nil)
		return
	}

	entry := &models.OffchainBalance{
		ID:        req.ID,
		AccountID: req.AccountID,
		Name:      req.Name,
		EthValue:  req.EthValue,
	}
	if err := s.offchainService.Set(r.Context(), entry); err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, entry)
}

// handleDeleteOffchain removes a manual off-chain entry.
func (s *Server) handleDeleteOffchain(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "Invalid entry id", nil)
		return
	}

	if err := s.offchainService.Delete(r.Context(), id); err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleGetFiatRate returns the current fiat conversion rate.
func (s *Server) handleGetFiatRate(w http.ResponseWriter, r *http.Request) {
	rate, err := s.fiatFeed.Rate(r.Context(), s.fiatCurrency)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"currency": s.fiatCurrency,
		"rate":     rate,
	})
}

// handleGetJobCounts reports queue depth across both check queues.
func (s *Server) handleGetJobCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := s.scheduler.Counts(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"queues":      counts,
		"in_progress": counts.InProgress(),
	})
}
