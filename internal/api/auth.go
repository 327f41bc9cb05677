package api

import (
	"encoding/json"
	"net/http"

	"github.com/Amchik/archk/internal/identity"
)

// registerRequest is the payload for POST /api/v1/users.
type registerRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`

	// Invite is the invite to consume. Empty is the bootstrap sentinel,
	// accepted only while no user exists.
	Invite string `json:"invite"`
}

// handleRegister creates a user account and logs it in.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	user, err := s.identity.Register(r.Context(), req.Name, req.Password, req.Invite)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	bearer, err := s.tokens.IssueUser(r.Context(), user.ID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"user":  user,
		"token": bearer,
	})
}

// loginRequest is the payload for POST /api/v1/auth. Either name+password
// or an SSH public key is presented.
type loginRequest struct {
	Name     string `json:"name,omitempty"`
	Password string `json:"password,omitempty"`

	SSHKey *struct {
		Type  int64  `json:"type"`
		Value string `json:"value"`
	} `json:"ssh_key,omitempty"`
}

// handleLogin verifies credentials and issues a personal token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	var user *identity.User
	var err error
	switch {
	case req.SSHKey != nil:
		user, err = s.identity.VerifySSHKey(r.Context(), req.SSHKey.Type, req.SSHKey.Value)
	case req.Name != "" && req.Password != "":
		user, err = s.identity.VerifyPassword(r.Context(), req.Name, req.Password)
	default:
		writeBadRequest(w, "name and password, or an ssh key, are required")
		return
	}
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	bearer, err := s.tokens.IssueUser(r.Context(), user.ID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user":  user,
		"token": bearer,
	})
}

// handleLogout revokes the token that authenticated this request.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	if actor == nil {
		writeUnauthorized(w, "missing bearer token")
		return
	}

	if err := s.tokens.RevokeBearer(r.Context(), actor.Bearer); err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"revoked": true})
}
