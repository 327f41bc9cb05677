package api

import (
	"net/http"
	"testing"

	"github.com/Amchik/archk/internal/audit"
	"github.com/Amchik/archk/internal/space"
)

// createSpace makes a space over HTTP and returns it.
func createSpace(t *testing.T, router http.Handler, bearer, title string) space.Space {
	t.Helper()

	w := doJSON(t, router, http.MethodPost, "/api/v1/spaces/", bearer, titleRequest{Title: title})
	if w.Code != http.StatusCreated {
		t.Fatalf("create space: status = %d, body: %s", w.Code, w.Body.String())
	}

	var sp space.Space
	decodeBody(t, w, &sp)
	return sp
}

func TestSpaceLifecycle(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	admin, bearer := registerUser(t, router, "admin", "password123", "")

	sp := createSpace(t, router, bearer, "Workshop")
	if sp.OwnerID != admin.ID {
		t.Errorf("owner_id = %q, want %q", sp.OwnerID, admin.ID)
	}

	w := doJSON(t, router, http.MethodPatch, "/api/v1/spaces/"+sp.ID, bearer, titleRequest{Title: "Garage"})
	if w.Code != http.StatusOK {
		t.Fatalf("rename status = %d, body: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodGet, "/api/v1/spaces/"+sp.ID, bearer, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var got space.Space
	decodeBody(t, w, &got)
	if got.Title != "Garage" {
		t.Errorf("title = %q, want Garage", got.Title)
	}

	w = doJSON(t, router, http.MethodGet, "/api/v1/user/spaces", bearer, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("my spaces status = %d", w.Code)
	}
	var listResp struct {
		Spaces []space.Space `json:"spaces"`
	}
	decodeBody(t, w, &listResp)
	if len(listResp.Spaces) != 1 {
		t.Errorf("spaces count = %d, want 1", len(listResp.Spaces))
	}

	w = doJSON(t, router, http.MethodDelete, "/api/v1/spaces/"+sp.ID, bearer, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w.Code)
	}
	if w := doJSON(t, router, http.MethodGet, "/api/v1/spaces/"+sp.ID, bearer, nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestCreateSpace_RequiresPermission(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	// Bootstrap, then bring in a level-0 user who lacks the spaces permission.
	_, adminBearer := registerUser(t, router, "admin", "password123", "")
	doJSON(t, router, http.MethodPost, "/api/v1/users/invites/wave", adminBearer, map[string]int64{"min_level": 100})

	w := doJSON(t, router, http.MethodPost, "/api/v1/user/invites", adminBearer, nil)
	var invite struct {
		ID string `json:"id"`
	}
	decodeBody(t, w, &invite)
	_, bearer := registerUser(t, router, "alice", "password123", invite.ID)

	if w := doJSON(t, router, http.MethodPost, "/api/v1/spaces/", bearer, titleRequest{Title: "Denied"}); w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestAccountAndItemFlow(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	_, bearer := registerUser(t, router, "admin", "password123", "")
	sp := createSpace(t, router, bearer, "Workshop")

	// First PUT links the account, second reconciles it.
	accountURL := "/api/v1/spaces/" + sp.ID + "/accounts/plat-1"
	w := doJSON(t, router, http.MethodPut, accountURL, bearer, upsertAccountRequest{Name: "gamer_one"})
	if w.Code != http.StatusCreated {
		t.Fatalf("link account status = %d, body: %s", w.Code, w.Body.String())
	}

	display := "Gamer One"
	w = doJSON(t, router, http.MethodPut, accountURL, bearer, upsertAccountRequest{Name: "gamer_one", DisplayName: &display})
	if w.Code != http.StatusOK {
		t.Fatalf("reconcile account status = %d, body: %s", w.Code, w.Body.String())
	}
	var account space.Account
	decodeBody(t, w, &account)
	if account.DisplayName == nil || *account.DisplayName != display {
		t.Errorf("display name = %v, want %q", account.DisplayName, display)
	}

	owner := "plat-1"
	w = doJSON(t, router, http.MethodPost, "/api/v1/spaces/"+sp.ID+"/items/", bearer, createItemRequest{
		Title:   "Door card",
		Type:    int64(space.ItemKeycard),
		Serial:  "KC-001",
		OwnerID: &owner,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create item status = %d, body: %s", w.Code, w.Body.String())
	}
	var item space.Item
	decodeBody(t, w, &item)
	if item.Type != space.ItemKeycard {
		t.Errorf("item type = %d, want %d", item.Type, space.ItemKeycard)
	}

	// The same serial conflicts within the space.
	w = doJSON(t, router, http.MethodPost, "/api/v1/spaces/"+sp.ID+"/items/", bearer, createItemRequest{
		Title:   "Duplicate",
		Type:    int64(space.ItemKeycard),
		Serial:  "KC-001",
		OwnerID: &owner,
	})
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate serial status = %d, want %d", w.Code, http.StatusConflict)
	}

	// A keycard cannot lose its owner.
	w = doJSON(t, router, http.MethodPut, "/api/v1/spaces/"+sp.ID+"/items/"+item.ID+"/owner", bearer,
		reassignItemRequest{OwnerID: nil})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("clear keycard owner status = %d, want %d", w.Code, http.StatusUnprocessableEntity)
	}

	w = doJSON(t, router, http.MethodGet, "/api/v1/spaces/"+sp.ID+"/accounts/plat-1/items", bearer, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("account items status = %d", w.Code)
	}
	var itemsResp struct {
		Items []space.Item `json:"items"`
	}
	decodeBody(t, w, &itemsResp)
	if len(itemsResp.Items) != 1 {
		t.Errorf("account items count = %d, want 1", len(itemsResp.Items))
	}

	// Unlinking the account cascades its items away.
	if w := doJSON(t, router, http.MethodDelete, accountURL, bearer, nil); w.Code != http.StatusOK {
		t.Fatalf("unlink account status = %d", w.Code)
	}
	if w := doJSON(t, router, http.MethodGet, "/api/v1/spaces/"+sp.ID+"/items/"+item.ID, bearer, nil); w.Code != http.StatusNotFound {
		t.Errorf("item after cascade status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestSpaceLogs_Filters(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	_, bearer := registerUser(t, router, "admin", "password123", "")
	sp := createSpace(t, router, bearer, "Workshop")

	doJSON(t, router, http.MethodPut, "/api/v1/spaces/"+sp.ID+"/accounts/plat-1", bearer,
		upsertAccountRequest{Name: "gamer_one"})

	w := doJSON(t, router, http.MethodGet, "/api/v1/spaces/"+sp.ID+"/logs", bearer, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("logs status = %d, body: %s", w.Code, w.Body.String())
	}

	var result audit.ListResult
	decodeBody(t, w, &result)
	if result.Total != 2 {
		t.Errorf("total = %d, want 2 (created, linked)", result.Total)
	}

	w = doJSON(t, router, http.MethodGet, "/api/v1/spaces/"+sp.ID+"/logs?account=plat-1", bearer, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("filtered logs status = %d", w.Code)
	}
	decodeBody(t, w, &result)
	if result.Total != 1 {
		t.Errorf("filtered total = %d, want 1", result.Total)
	}
	if len(result.Entries) == 1 && result.Entries[0].Action != audit.ActionAccountLinked {
		t.Errorf("act = %d, want %d", result.Entries[0].Action, audit.ActionAccountLinked)
	}
}

func TestSpaceAccess_ForeignUser(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	_, adminBearer := registerUser(t, router, "admin", "password123", "")
	sp := createSpace(t, router, adminBearer, "Private")

	doJSON(t, router, http.MethodPost, "/api/v1/users/invites/wave", adminBearer, map[string]int64{"min_level": 100})
	w := doJSON(t, router, http.MethodPost, "/api/v1/user/invites", adminBearer, nil)
	var invite struct {
		ID string `json:"id"`
	}
	decodeBody(t, w, &invite)
	_, bearer := registerUser(t, router, "alice", "password123", invite.ID)

	if w := doJSON(t, router, http.MethodGet, "/api/v1/spaces/"+sp.ID, bearer, nil); w.Code != http.StatusForbidden {
		t.Errorf("foreign get status = %d, want %d", w.Code, http.StatusForbidden)
	}
	if w := doJSON(t, router, http.MethodGet, "/api/v1/spaces/"+sp.ID+"/logs", bearer, nil); w.Code != http.StatusForbidden {
		t.Errorf("foreign logs status = %d, want %d", w.Code, http.StatusForbidden)
	}
}
