package apitest

import (
	"encoding/json"
	"go/build"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alphabot-ai/hackorsnooze/internal/model"
)

func TestListStoriesNewestFirst(t *testing.T) {
	s := New()
	first := s.SeedStory("alice", model.NewStory{Title: "first", Author: "a", URL: "https://example.com/1"})
	second := s.SeedStory("alice", model.NewStory{Title: "second", Author: "a", URL: "https://example.com/2"})

	req := httptest.NewRequest(http.MethodGet, "/stories", nil)
	resp := httptest.NewRecorder()
	s.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var payload struct {
		Stories []model.Story `json:"stories"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("json parse: %v", err)
	}
	if len(payload.Stories) != 2 {
		t.Fatalf("expected 2 stories, got %d", len(payload.Stories))
	}
	if payload.Stories[0].ID != second.ID || payload.Stories[1].ID != first.ID {
		t.Fatalf("expected newest first")
	}
}

func TestErrorEnvelope(t *testing.T) {
	s := New()
	req := httptest.NewRequest(http.MethodGet, "/stories/missing", nil)
	resp := httptest.NewRecorder()
	s.ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}

	var payload struct {
		Error struct {
			Status  int    `json:"status"`
			Title   string `json:"title"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("json parse: %v", err)
	}
	if payload.Error.Status != 404 || payload.Error.Title != "Not Found" {
		t.Fatalf("unexpected envelope: %+v", payload.Error)
	}
}

func TestDeleteStoryDropsFavorites(t *testing.T) {
	s := New()
	aliceToken := s.SeedUser("alice", "pw", "Alice")
	bobToken := s.SeedUser("bob", "pw", "Bob")
	story := s.SeedStory("alice", model.NewStory{Title: "t", Author: "a", URL: "https://example.com"})

	fav := httptest.NewRequest(http.MethodPost, "/users/bob/favorites/"+story.ID+"?token="+bobToken, nil)
	resp := httptest.NewRecorder()
	s.ServeHTTP(resp, fav)
	if resp.Code != http.StatusOK {
		t.Fatalf("favorite: expected 200, got %d", resp.Code)
	}

	del := httptest.NewRequest(http.MethodDelete, "/stories/"+story.ID, strings.NewReader(`{"token":"`+bobToken+`"}`))
	resp = httptest.NewRecorder()
	s.ServeHTTP(resp, del)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("non-owner delete: expected 403, got %d", resp.Code)
	}

	del = httptest.NewRequest(http.MethodDelete, "/stories/"+story.ID, strings.NewReader(`{"token":"`+aliceToken+`"}`))
	resp = httptest.NewRecorder()
	s.ServeHTTP(resp, del)
	if resp.Code != http.StatusOK {
		t.Fatalf("owner delete: expected 200, got %d", resp.Code)
	}
	if ids := s.FavoriteIDs("bob"); len(ids) != 0 {
		t.Fatalf("expected favorites to be cleared, got %v", ids)
	}
}

func TestRevokeTokens(t *testing.T) {
	s := New()
	token := s.SeedUser("alice", "pw", "Alice")
	s.RevokeTokens("alice")

	req := httptest.NewRequest(http.MethodGet, "/users/alice?token="+token, nil)
	resp := httptest.NewRecorder()
	s.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

type cleanups struct{ funcs []func() }

func (c *cleanups) Helper()          {}
func (c *cleanups) Cleanup(f func()) { c.funcs = append(c.funcs, f) }

func TestStartWithoutTestingT(t *testing.T) {
	c := &cleanups{}
	_, ts := Start(c)

	resp, err := http.Get(ts.URL + "/stories")
	if err != nil {
		t.Fatalf("get stories: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	for _, f := range c.funcs {
		f()
	}
	if _, err := http.Get(ts.URL + "/stories"); err == nil {
		t.Fatalf("expected the server to be closed by cleanup")
	}
}

func TestPackageDoesNotImportTesting(t *testing.T) {
	pkg, err := build.ImportDir(".", 0)
	if err != nil {
		t.Fatalf("import dir: %v", err)
	}
	for _, imp := range pkg.Imports {
		if imp == "testing" {
			t.Fatalf("non-test files import testing; it would ship in the mock command")
		}
	}
}
