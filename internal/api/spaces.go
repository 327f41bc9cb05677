package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Amchik/archk/internal/audit"
	"github.com/Amchik/archk/internal/space"
)

// titleRequest is the payload for space create and rename.
type titleRequest struct {
	Title string `json:"title"`
}

// handleCreateSpace creates a space owned by the caller.
func (s *Server) handleCreateSpace(w http.ResponseWriter, r *http.Request) {
	var req titleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	sp, err := s.registry.CreateSpace(r.Context(), actorFrom(r).User, req.Title)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sp)
}

// handleGetSpace returns a space.
func (s *Server) handleGetSpace(w http.ResponseWriter, r *http.Request) {
	sp, err := s.registry.GetSpace(r.Context(), actorFrom(r).User, chi.URLParam(r, "spaceID"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sp)
}

// handleRenameSpace changes a space's title.
func (s *Server) handleRenameSpace(w http.ResponseWriter, r *http.Request) {
	var req titleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	sp, err := s.registry.RenameSpace(r.Context(), actorFrom(r).User, chi.URLParam(r, "spaceID"), req.Title)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sp)
}

// handleDeleteSpace removes a space and everything inside it.
func (s *Server) handleDeleteSpace(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.DeleteSpace(r.Context(), actorFrom(r).User, chi.URLParam(r, "spaceID")); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// handleSpaceLogs returns a page of the space's audit log, optionally
// filtered by account/item reference and time range (unix milliseconds).
func (s *Server) handleSpaceLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.Filter{
		SpaceID:    chi.URLParam(r, "spaceID"),
		AccountRef: q.Get("account"),
		ItemRef:    q.Get("item"),
	}
	filter.After, _ = strconv.ParseInt(q.Get("after"), 10, 64)   //nolint:errcheck // absent or malformed means unset
	filter.Before, _ = strconv.ParseInt(q.Get("before"), 10, 64) //nolint:errcheck // absent or malformed means unset
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))               //nolint:errcheck // List clamps the default
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))             //nolint:errcheck // List clamps the default

	result, err := s.registry.Logs(r.Context(), actorFrom(r).User, filter)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleListAccounts returns the platform accounts bound to a space.
func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	sp, err := s.registry.GetSpace(r.Context(), actor.User, chi.URLParam(r, "spaceID"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	accounts, err := s.registry.Accounts().ListBySpace(r.Context(), sp.ID, space.PageSize, pageParam(r)*space.PageSize)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

// handleGetAccount returns one platform account.
func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	sp, err := s.registry.GetSpace(r.Context(), actor.User, chi.URLParam(r, "spaceID"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	account, err := s.registry.Accounts().Get(r.Context(), sp.ID, chi.URLParam(r, "platformID"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// upsertAccountRequest is the payload for PUT /accounts/{platformID}.
type upsertAccountRequest struct {
	Name        string  `json:"name"`
	DisplayName *string `json:"display_name,omitempty"`
}

// handleUpsertAccount links a platform account or reconciles its display
// fields if it is already linked.
func (s *Server) handleUpsertAccount(w http.ResponseWriter, r *http.Request) {
	var req upsertAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Name == "" {
		writeBadRequest(w, "name is required")
		return
	}

	account, created, err := s.registry.UpsertAccount(r.Context(), actorFrom(r).User,
		chi.URLParam(r, "spaceID"), chi.URLParam(r, "platformID"), req.Name, req.DisplayName)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, account)
}

// handleDeleteAccount unlinks a platform account, cascading its items.
func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	err := s.registry.DeleteAccount(r.Context(), actorFrom(r).User,
		chi.URLParam(r, "spaceID"), chi.URLParam(r, "platformID"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// handleAccountItems returns the items owned by a platform account.
func (s *Server) handleAccountItems(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	sp, err := s.registry.GetSpace(r.Context(), actor.User, chi.URLParam(r, "spaceID"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	items, err := s.registry.Items().ListByAccount(r.Context(), sp.ID, chi.URLParam(r, "platformID"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// handleListItems returns a page of a space's items.
func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	sp, err := s.registry.GetSpace(r.Context(), actor.User, chi.URLParam(r, "spaceID"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	items, err := s.registry.Items().ListBySpace(r.Context(), sp.ID, space.PageSize, pageParam(r)*space.PageSize)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// createItemRequest is the payload for POST /items.
type createItemRequest struct {
	Title   string  `json:"title"`
	Type    int64   `json:"ty"`
	Serial  string  `json:"serial"`
	OwnerID *string `json:"owner_id,omitempty"`
}

// handleCreateItem adds an item to a space.
func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Serial == "" {
		writeBadRequest(w, "serial is required")
		return
	}

	item, err := s.registry.CreateItem(r.Context(), actorFrom(r).User,
		chi.URLParam(r, "spaceID"), req.Title, space.ItemType(req.Type), req.Serial, req.OwnerID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// handleGetItem returns one item.
func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	sp, err := s.registry.GetSpace(r.Context(), actor.User, chi.URLParam(r, "spaceID"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	item, err := s.registry.Items().Get(r.Context(), sp.ID, chi.URLParam(r, "itemID"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// handleRenameItem changes an item's title.
func (s *Server) handleRenameItem(w http.ResponseWriter, r *http.Request) {
	var req titleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	err := s.registry.RenameItem(r.Context(), actorFrom(r).User,
		chi.URLParam(r, "spaceID"), chi.URLParam(r, "itemID"), req.Title)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"renamed": true})
}

// reassignItemRequest is the payload for PUT /items/{itemID}/owner.
// A null owner clears ownership.
type reassignItemRequest struct {
	OwnerID *string `json:"owner_id"`
}

// handleReassignItem moves an item to another account in the same space.
func (s *Server) handleReassignItem(w http.ResponseWriter, r *http.Request) {
	var req reassignItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	err := s.registry.ReassignItem(r.Context(), actorFrom(r).User,
		chi.URLParam(r, "spaceID"), chi.URLParam(r, "itemID"), req.OwnerID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reassigned": true})
}

// handleDeleteItem removes an item.
func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	err := s.registry.DeleteItem(r.Context(), actorFrom(r).User,
		chi.URLParam(r, "spaceID"), chi.URLParam(r, "itemID"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}
