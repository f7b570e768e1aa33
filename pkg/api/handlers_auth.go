package api

import (
	"net/http"

	"github.com/pmoura/lsmkv/pkg/auth"
)

// handleIssueToken exchanges the deployment API secret for a bearer token.
// When no secret hash is configured any non-empty secret is accepted, which
// keeps development setups usable without provisioning.
func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Secret == "" {
		respondError(w, http.StatusBadRequest, "missing secret")
		return
	}
	if s.apiSecretHash != "" {
		if err := auth.CompareSecret(s.apiSecretHash, req.Secret); err != nil {
			respondError(w, http.StatusUnauthorized, "invalid api secret")
			return
		}
	}

	token, err := s.auth.IssueToken("api-client")
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondOK(w, "token issued", map[string]any{"token": token})
}
