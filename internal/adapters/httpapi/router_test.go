package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/parleychat/parley/internal/app"
	"github.com/parleychat/parley/internal/auth"
	"github.com/parleychat/parley/internal/config"
	"github.com/parleychat/parley/internal/core"
	"github.com/parleychat/parley/internal/domain"
	"github.com/parleychat/parley/internal/store"
)

type apiFixture struct {
	router   *gin.Engine
	verifier *auth.Verifier
	coord    *app.Coordinator
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	reg := core.NewRegistry()
	coord := app.NewCoordinator(reg, core.NewBroadcaster(reg), store.NewRoomRepo(db), store.NewMessageRepo(db), time.Second)
	verifier := auth.NewVerifier("api-test-secret", "parley")

	cfg := &config.Config{
		Mode:            "release",
		ReadLimit:       32768,
		PingPeriod:      54 * time.Second,
		SendBuffer:      8,
		RoomsPerPage:    20,
		MessagesPerPage: 50,
	}
	return &apiFixture{
		router:   SetupRouter(context.Background(), cfg, verifier, coord),
		verifier: verifier,
		coord:    coord,
	}
}

func (f *apiFixture) token(t *testing.T, id domain.Identity) string {
	t.Helper()
	tok, err := f.verifier.Issue(id, time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func member(sub, name string) domain.Identity {
	return domain.Identity{Subject: sub, Email: sub + "@example.com", Name: name, Roles: []string{"user"}}
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodGet, "/api/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health returned %d", rec.Code)
	}
}

func TestRoomsRequireAuth(t *testing.T) {
	f := newAPIFixture(t)

	if rec := f.do(t, http.MethodGet, "/api/rooms", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: got %d, want 401", rec.Code)
	}

	noRoles := domain.Identity{Subject: "ghost", Email: "ghost@example.com"}
	rec := f.do(t, http.MethodGet, "/api/rooms", f.token(t, noRoles), nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("roleless token: got %d, want 403", rec.Code)
	}
}

func TestCreateRoom(t *testing.T) {
	f := newAPIFixture(t)
	tok := f.token(t, member("alice", "Alice"))

	rec := f.do(t, http.MethodPost, "/api/rooms", tok, gin.H{
		"name":        "general",
		"description": "a place for everything else",
		"maxMembers":  5,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: got %d, body %s", rec.Code, rec.Body.String())
	}
	var room domain.Room
	if err := json.Unmarshal(rec.Body.Bytes(), &room); err != nil {
		t.Fatalf("decode room: %v", err)
	}
	if room.ID == "" || room.CreatedBy != "alice" || room.Status != domain.StatusActive {
		t.Fatalf("unexpected room: %+v", room)
	}

	// Listing shows it on the first page.
	rec = f.do(t, http.MethodGet, "/api/rooms", tok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: got %d", rec.Code)
	}
	var listed struct {
		Rooms []domain.Room `json:"rooms"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed.Rooms) != 1 || listed.Rooms[0].ID != room.ID {
		t.Fatalf("unexpected listing: %+v", listed.Rooms)
	}
}

func TestCreateRoomValidation(t *testing.T) {
	f := newAPIFixture(t)
	tok := f.token(t, member("alice", "Alice"))

	cases := []struct {
		name string
		body gin.H
	}{
		{"short name", gin.H{"name": "ab", "description": "long enough description"}},
		{"missing description", gin.H{"name": "general"}},
		{"zero capacity", gin.H{"name": "general", "description": "long enough description", "maxMembers": 0}},
	}
	for _, tc := range cases {
		if rec := f.do(t, http.MethodPost, "/api/rooms", tok, tc.body); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: got %d, want 400", tc.name, rec.Code)
		}
	}
}

func TestJoinAndLeaveRoom(t *testing.T) {
	f := newAPIFixture(t)
	alice := f.token(t, member("alice", "Alice"))
	bob := f.token(t, member("bob", "Bob"))

	rec := f.do(t, http.MethodPost, "/api/rooms", alice, gin.H{
		"name":        "general",
		"description": "a place for everything else",
	})
	var room domain.Room
	if err := json.Unmarshal(rec.Body.Bytes(), &room); err != nil {
		t.Fatalf("decode room: %v", err)
	}

	rec = f.do(t, http.MethodPost, "/api/rooms/"+room.ID+"/join", bob, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("join: got %d, body %s", rec.Code, rec.Body.String())
	}
	var joined domain.Room
	if err := json.Unmarshal(rec.Body.Bytes(), &joined); err != nil {
		t.Fatalf("decode joined room: %v", err)
	}
	if !joined.MemberIDs.Contains("bob") {
		t.Fatalf("bob missing from member set: %v", joined.MemberIDs)
	}

	rec = f.do(t, http.MethodPost, "/api/rooms/"+room.ID+"/leave", bob, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("leave: got %d", rec.Code)
	}
	var left domain.Room
	if err := json.Unmarshal(rec.Body.Bytes(), &left); err != nil {
		t.Fatalf("decode left room: %v", err)
	}
	if left.MemberIDs.Contains("bob") {
		t.Fatalf("bob still in member set after leave: %v", left.MemberIDs)
	}
}

func TestJoinMissingRoom(t *testing.T) {
	f := newAPIFixture(t)
	tok := f.token(t, member("alice", "Alice"))

	rec := f.do(t, http.MethodPost, "/api/rooms/no-such-room/join", tok, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("got %d, want 404", rec.Code)
	}
}

func TestUpdateStatus(t *testing.T) {
	f := newAPIFixture(t)
	alice := f.token(t, member("alice", "Alice"))
	bob := f.token(t, member("bob", "Bob"))

	rec := f.do(t, http.MethodPost, "/api/rooms", alice, gin.H{
		"name":        "general",
		"description": "a place for everything else",
	})
	var room domain.Room
	if err := json.Unmarshal(rec.Body.Bytes(), &room); err != nil {
		t.Fatalf("decode room: %v", err)
	}

	// Only the creator may change the status.
	rec = f.do(t, http.MethodPut, "/api/rooms/"+room.ID+"/status", bob, gin.H{"status": "archived"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-creator: got %d, want 403", rec.Code)
	}

	rec = f.do(t, http.MethodPut, "/api/rooms/"+room.ID+"/status", alice, gin.H{"status": "archived"})
	if rec.Code != http.StatusOK {
		t.Fatalf("creator: got %d, body %s", rec.Code, rec.Body.String())
	}
	var updated domain.Room
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("decode updated room: %v", err)
	}
	if updated.Status != domain.StatusArchived {
		t.Fatalf("status = %q, want archived", updated.Status)
	}

	// Unknown statuses never reach the coordinator.
	rec = f.do(t, http.MethodPut, "/api/rooms/"+room.ID+"/status", alice, gin.H{"status": "frozen"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad status: got %d, want 400", rec.Code)
	}
}

func TestMessagesEndToEnd(t *testing.T) {
	f := newAPIFixture(t)
	alice := f.token(t, member("alice", "Alice"))

	rec := f.do(t, http.MethodPost, "/api/rooms", alice, gin.H{
		"name":        "general",
		"description": "a place for everything else",
	})
	var room domain.Room
	if err := json.Unmarshal(rec.Body.Bytes(), &room); err != nil {
		t.Fatalf("decode room: %v", err)
	}
	if rec := f.do(t, http.MethodPost, "/api/rooms/"+room.ID+"/join", alice, nil); rec.Code != http.StatusOK {
		t.Fatalf("join: got %d", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/api/rooms/"+room.ID+"/messages", alice, gin.H{"content": "hello there"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("send: got %d, body %s", rec.Code, rec.Body.String())
	}
	var msg domain.Message
	if err := json.Unmarshal(rec.Body.Bytes(), &msg); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if msg.AuthorID != "alice" || msg.Content != "hello there" {
		t.Fatalf("unexpected message: %+v", msg)
	}

	rec = f.do(t, http.MethodGet, "/api/rooms/"+room.ID+"/messages", alice, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("history: got %d", rec.Code)
	}
	var history struct {
		Messages []domain.Message `json:"messages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(history.Messages) != 1 || history.Messages[0].ID != msg.ID {
		t.Fatalf("unexpected history: %+v", history.Messages)
	}
}

func TestSendRequiresMembership(t *testing.T) {
	f := newAPIFixture(t)
	alice := f.token(t, member("alice", "Alice"))
	mallory := f.token(t, member("mallory", "Mallory"))

	rec := f.do(t, http.MethodPost, "/api/rooms", alice, gin.H{
		"name":        "general",
		"description": "a place for everything else",
	})
	var room domain.Room
	if err := json.Unmarshal(rec.Body.Bytes(), &room); err != nil {
		t.Fatalf("decode room: %v", err)
	}
	if rec := f.do(t, http.MethodPost, "/api/rooms/"+room.ID+"/join", alice, nil); rec.Code != http.StatusOK {
		t.Fatalf("join: got %d", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/api/rooms/"+room.ID+"/messages", mallory, gin.H{"content": "drive-by"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-member send: got %d, want 403", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/api/rooms/"+room.ID+"/messages", alice, nil)
	var history struct {
		Messages []domain.Message `json:"messages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(history.Messages) != 0 {
		t.Fatalf("non-member message reached history: %+v", history.Messages)
	}
}

func TestSendToArchivedRoom(t *testing.T) {
	f := newAPIFixture(t)
	alice := f.token(t, member("alice", "Alice"))

	rec := f.do(t, http.MethodPost, "/api/rooms", alice, gin.H{
		"name":        "general",
		"description": "a place for everything else",
	})
	var room domain.Room
	if err := json.Unmarshal(rec.Body.Bytes(), &room); err != nil {
		t.Fatalf("decode room: %v", err)
	}
	if rec := f.do(t, http.MethodPut, "/api/rooms/"+room.ID+"/status", alice, gin.H{"status": "archived"}); rec.Code != http.StatusOK {
		t.Fatalf("archive: got %d", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/api/rooms/"+room.ID+"/messages", alice, gin.H{"content": "anyone home"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("got %d, want 409", rec.Code)
	}
}
