package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// pageParam parses the ?page= query parameter, defaulting to zero.
func pageParam(r *http.Request) int64 {
	page, err := strconv.ParseInt(r.URL.Query().Get("page"), 10, 64)
	if err != nil || page < 0 {
		return 0
	}
	return page
}

// handleListUsers returns one page of users.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.identity.List(r.Context(), pageParam(r))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

// handleListRoles returns the configured permission tiers.
func (s *Server) handleListRoles(w http.ResponseWriter, _ *http.Request) {
	type tierResponse struct {
		Name        string   `json:"name"`
		Level       int64    `json:"level"`
		Permissions []string `json:"permissions"`
	}

	var tiers []tierResponse
	for _, t := range s.roles.Tiers() {
		perms := make([]string, 0, len(t.Permissions))
		for _, p := range t.Permissions {
			perms = append(perms, string(p))
		}
		tiers = append(tiers, tierResponse{Name: t.Name, Level: t.Level, Permissions: perms})
	}

	writeJSON(w, http.StatusOK, map[string]any{"roles": tiers})
}

// handleMe returns the calling user.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, actorFrom(r).User)
}

// changePasswordRequest is the payload for PATCH /api/v1/user.
type changePasswordRequest struct {
	OldPassword  string `json:"old_password"`
	NewPassword  string `json:"new_password"`
	RevokeTokens bool   `json:"revoke_tokens"`
}

// handleChangePassword updates the caller's password.
func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	actor := actorFrom(r)
	if err := s.identity.ChangePassword(r.Context(), actor.User, req.OldPassword, req.NewPassword, req.RevokeTokens); err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"changed": true})
}

// handleMyRole returns the caller's resolved permission tier.
func (s *Server) handleMyRole(w http.ResponseWriter, r *http.Request) {
	s.writeRole(w, actorFrom(r).User.Level)
}

// handleGetUser returns a user by ID.
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.identity.Get(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// handleGetRole returns the resolved tier of a user.
func (s *Server) handleGetRole(w http.ResponseWriter, r *http.Request) {
	user, err := s.identity.Get(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeRole(w, user.Level)
}

// writeRole writes the tier resolved for an access level. A level below
// every configured tier resolves to no permissions at all.
func (s *Server) writeRole(w http.ResponseWriter, level int64) {
	tier := s.authz.Tier(level)
	if tier == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"level":       level,
			"role":        nil,
			"permissions": []string{},
		})
		return
	}

	perms := make([]string, 0, len(tier.Permissions))
	for _, p := range tier.Permissions {
		perms = append(perms, string(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"level":       level,
		"role":        tier.Name,
		"permissions": perms,
	})
}

// promoteRequest is the payload for PUT /api/v1/user/{userID}/role.
type promoteRequest struct {
	Level int64 `json:"level"`
}

// handlePromote changes a user's access level.
func (s *Server) handlePromote(w http.ResponseWriter, r *http.Request) {
	var req promoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	actor := actorFrom(r)
	targetID := chi.URLParam(r, "userID")
	if err := s.identity.Promote(r.Context(), actor.User, targetID, req.Level); err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"user_id": targetID, "level": req.Level})
}

// handleResetPassword sets a random password on the target account and
// returns it once.
func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	password, err := s.identity.ResetPassword(r.Context(), actor.User, chi.URLParam(r, "userID"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"password": password})
}

// handleDeleteUser removes an account.
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	if err := s.identity.DeleteUser(r.Context(), actor.User, chi.URLParam(r, "userID")); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// handleListInvites returns the caller's unconsumed invites.
func (s *Server) handleListInvites(w http.ResponseWriter, r *http.Request) {
	invites, err := s.identity.ListInvites(r.Context(), actorFrom(r).User)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invites": invites})
}

// handleIssueInvite spends one invite unit and returns the new invite.
func (s *Server) handleIssueInvite(w http.ResponseWriter, r *http.Request) {
	invite, err := s.identity.IssueInvite(r.Context(), actorFrom(r).User)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, invite)
}

// inviteWaveRequest is the payload for POST /api/v1/users/invites/wave.
type inviteWaveRequest struct {
	MinLevel int64 `json:"min_level"`
}

// handleInviteWave grants one invite to every user at or above a level.
func (s *Server) handleInviteWave(w http.ResponseWriter, r *http.Request) {
	var req inviteWaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	affected, err := s.identity.InviteWave(r.Context(), actorFrom(r).User, req.MinLevel)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"users": affected})
}

// addKeyRequest is the payload for POST /api/v1/user/keys.
type addKeyRequest struct {
	Type  int64  `json:"type"`
	Value string `json:"value"`
}

// handleAddKey registers an SSH public key on the caller's account.
func (s *Server) handleAddKey(w http.ResponseWriter, r *http.Request) {
	var req addKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Value == "" {
		writeBadRequest(w, "key value is required")
		return
	}

	key, err := s.identity.RegisterSSHKey(r.Context(), actorFrom(r).User, req.Type, req.Value)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, key)
}

// handleListKeys returns the caller's SSH keys.
func (s *Server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := s.identity.ListSSHKeys(r.Context(), actorFrom(r).User)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": keys})
}

// handleDeleteKey removes one of the caller's SSH keys.
func (s *Server) handleDeleteKey(w http.ResponseWriter, r *http.Request) {
	if err := s.identity.DeleteSSHKey(r.Context(), actorFrom(r).User, chi.URLParam(r, "keyID")); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// handleMySpaces lists the caller's spaces.
func (s *Server) handleMySpaces(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	spaces, err := s.registry.ListSpaces(r.Context(), actor.User, actor.User.ID, pageParam(r))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"spaces": spaces})
}

// handleUserSpaces lists another user's spaces (requires spaces_manage).
func (s *Server) handleUserSpaces(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	spaces, err := s.registry.ListSpaces(r.Context(), actor.User, chi.URLParam(r, "userID"), pageParam(r))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"spaces": spaces})
}
