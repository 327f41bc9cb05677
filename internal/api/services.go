package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Amchik/archk/internal/audit"
	"github.com/Amchik/archk/internal/service"
)

// handleSpaceServices returns the service accounts bound to a space.
func (s *Server) handleSpaceServices(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.services.ListBySpace(r.Context(), actorFrom(r).User, chi.URLParam(r, "spaceID"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": accounts})
}

// handleListGlobalServices returns the service accounts not bound to any
// space. Restricted to service managers.
func (s *Server) handleListGlobalServices(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.services.ListGlobal(r.Context(), actorFrom(r).User)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": accounts})
}

// createServiceRequest is the payload for POST /services. space_id is
// required for space-scoped tiers and rejected for global ones.
type createServiceRequest struct {
	Tier    int64   `json:"ty"`
	SpaceID *string `json:"space_id,omitempty"`
}

// handleCreateService provisions a service account.
func (s *Server) handleCreateService(w http.ResponseWriter, r *http.Request) {
	var req createServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	account, err := s.services.Create(r.Context(), actorFrom(r).User, service.Tier(req.Tier), req.SpaceID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

// handleGetService returns a service account.
func (s *Server) handleGetService(w http.ResponseWriter, r *http.Request) {
	account, err := s.services.Get(r.Context(), actorFrom(r).User, chi.URLParam(r, "serviceID"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// handleDeleteService removes a service account and its tokens.
func (s *Server) handleDeleteService(w http.ResponseWriter, r *http.Request) {
	if err := s.services.Delete(r.Context(), actorFrom(r).User, chi.URLParam(r, "serviceID")); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// handleIssueServiceToken mints a bearer token for a service account. The
// string is returned once and never stored.
func (s *Server) handleIssueServiceToken(w http.ResponseWriter, r *http.Request) {
	account, err := s.services.Get(r.Context(), actorFrom(r).User, chi.URLParam(r, "serviceID"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	bearer, err := s.tokens.IssueService(r.Context(), account.ID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"token": bearer})
}

// handleCountServiceTokens returns how many live tokens a service account
// has.
func (s *Server) handleCountServiceTokens(w http.ResponseWriter, r *http.Request) {
	account, err := s.services.Get(r.Context(), actorFrom(r).User, chi.URLParam(r, "serviceID"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	count, err := s.tokens.CountForService(r.Context(), account.ID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tokens": count})
}

// handleRevokeServiceTokens revokes every token of a service account.
func (s *Server) handleRevokeServiceTokens(w http.ResponseWriter, r *http.Request) {
	account, err := s.services.Get(r.Context(), actorFrom(r).User, chi.URLParam(r, "serviceID"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	if err := s.tokens.RevokeAllService(r.Context(), account.ID); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"revoked": true})
}

// sshKeyLookupRequest is the payload for the SSH authority surface.
type sshKeyLookupRequest struct {
	Fingerprint string `json:"fingerprint"`
}

// handleSSHKeyLookup resolves an SSH key fingerprint to the candidate
// keys and their owners. Restricted to SSH authority services; an SSH
// gateway calls this during public-key authentication.
func (s *Server) handleSSHKeyLookup(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	if actor.Service.Tier != service.TierSSHAuthority {
		writeForbidden(w, "ssh authority token required")
		return
	}

	var req sshKeyLookupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Fingerprint == "" {
		writeBadRequest(w, "fingerprint is required")
		return
	}

	keys, err := s.identity.KeysByFingerprint(r.Context(), req.Fingerprint)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": keys})
}

// reportRequest is the payload for the reporter surface.
type reportRequest struct {
	Action     int64   `json:"act"`
	AccountRef *string `json:"account,omitempty"`
	ItemRef    *string `json:"item,omitempty"`
}

// handleServiceReport appends an externally observed event to the audit
// log of the space the reporting service is bound to.
func (s *Server) handleServiceReport(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	if actor.Service.Tier != service.TierSpaceActor || actor.Service.SpaceID == nil {
		writeForbidden(w, "space actor token required")
		return
	}

	var req reportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if audit.Action(req.Action) < audit.ReportedActionBase {
		writeBadRequest(w, "action codes below 100 are reserved")
		return
	}

	entry, err := s.registry.Report(r.Context(), *actor.Service.SpaceID,
		audit.Action(req.Action), req.AccountRef, req.ItemRef)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// handleServiceLogs returns the audit log of the space a watcher service
// is bound to. Accepts the same query filters as the user-facing log
// endpoint.
func (s *Server) handleServiceLogs(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	if actor.Service.Tier != service.TierSpaceEventWatcher || actor.Service.SpaceID == nil {
		writeForbidden(w, "event watcher token required")
		return
	}

	q := r.URL.Query()
	var filter audit.Filter
	filter.AccountRef = q.Get("account")
	filter.ItemRef = q.Get("item")
	filter.After, _ = strconv.ParseInt(q.Get("after"), 10, 64)   //nolint:errcheck // absent or malformed means unset
	filter.Before, _ = strconv.ParseInt(q.Get("before"), 10, 64) //nolint:errcheck // absent or malformed means unset
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))               //nolint:errcheck // List clamps the default
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))             //nolint:errcheck // List clamps the default

	result, err := s.registry.ServiceLogs(r.Context(), *actor.Service.SpaceID, filter)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
