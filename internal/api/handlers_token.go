package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/networth-tracker/internal/types"
)

// registerTokenRequest is the request body for tracking a token
type registerTokenRequest struct {
	ChainID types.ChainID `json:"chain_id"`
	Address string        `json:"address"`
}

// handleListTokens returns all tracked tokens.
func (s *Server) handleListTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := s.tokenService.List(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"tokens": tokens,
	})
}

// handleRegisterToken adds a token to the tracked set, resolving its
// metadata on chain.
func (s *Server) handleRegisterToken(w http.ResponseWriter, r *http.Request) {
	var req registerTokenRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "Invalid request body", nil)
		return
	}

	token, err := s.tokenService.Register(r.Context(), req.ChainID, req.Address)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, token)
}

// handleUnregisterToken removes a token from the tracked set.
func (s *Server) handleUnregisterToken(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	chainID, err := strconv.ParseInt(vars["chainID"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "Invalid chain id", nil)
		return
	}

	if err := s.tokenService.Unregister(r.Context(), types.ChainID(chainID), vars["address"]); err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
