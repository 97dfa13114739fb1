package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/networth-tracker/internal/models"
	"github.com/networth-tracker/internal/types"
)

// createChainRequest is the request body for configuring a chain
type createChainRequest struct {
	ID               types.ChainID `json:"id"`
	Name             string        `json:"name"`
	RPCURL           string        `json:"rpc_url"`
	MulticallAddress string        `json:"multicall_address"`
}

// handleListChains returns all configured chains.
func (s *Server) handleListChains(w http.ResponseWriter, r *http.Request) {
	chains, err := s.chainRepo.List(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"chains": chains,
	})
}

// handleCreateChain configures a new chain.
func (s *Server) handleCreateChain(w http.ResponseWriter, r *http.Request) {
	var req createChainRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "Invalid request body", nil)
		return
	}

	if req.ID <= 0 {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "Chain id must be positive", nil)
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.RPCURL) == "" {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "Name and rpc_url are required", nil)
		return
	}

	chain := &models.Chain{
		ID:               req.ID,
		Name:             req.Name,
		RPCURL:           req.RPCURL,
		MulticallAddress: strings.ToLower(req.MulticallAddress),
	}
	if err := s.chainRepo.Create(r.Context(), chain); err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, chain)
}

// handleDeleteChain removes a chain configuration.
func (s *Server) handleDeleteChain(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "Invalid chain id", nil)
		return
	}

	if err := s.chainRepo.Delete(r.Context(), types.ChainID(id)); err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
