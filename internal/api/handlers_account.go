package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"

	"github.com/networth-tracker/internal/models"
)

// createAccountRequest is the request body for tracking an account.
// Address is optional: accounts without one hold only off-chain
// entries.
type createAccountRequest struct {
	Name    string  `json:"name"`
	Address *string `json:"address,omitempty"`
	Label   *string `json:"label,omitempty"`
}

// handleListAccounts returns all tracked accounts.
func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.accountRepo.List(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": accounts,
	})
}

// handleCreateAccount adds an account to the tracked set.
func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "Invalid request body", nil)
		return
	}

	if strings.TrimSpace(req.Name) == "" {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "Name is required", nil)
		return
	}

	if req.Address != nil && *req.Address != "" {
		if !common.IsHexAddress(*req.Address) {
			respondError(w, http.StatusBadRequest, "INVALID_INPUT", "Address is not a valid hex address", nil)
			return
		}
		normalized := strings.ToLower(*req.Address)
		req.Address = &normalized
	}

	account := &models.Account{
		Name:    req.Name,
		Address: req.Address,
		Label:   req.Label,
	}
	if err := s.accountRepo.Create(r.Context(), account); err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, account)
}

// handleDeleteAccount removes an account and its balance rows.
func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "Invalid account id", nil)
		return
	}

	if err := s.accountRepo.Delete(r.Context(), id); err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
