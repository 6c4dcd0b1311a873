package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/alphabot-ai/hackorsnooze/internal/apitest"
	"github.com/alphabot-ai/hackorsnooze/internal/client"
	"github.com/alphabot-ai/hackorsnooze/internal/model"
	"github.com/alphabot-ai/hackorsnooze/internal/store"
	"github.com/alphabot-ai/hackorsnooze/internal/store/sqlite"
	"github.com/alphabot-ai/hackorsnooze/internal/users"
)

type fixture struct {
	srv   *apitest.Server
	api   *client.Client
	store *sqlite.Store
	url   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srv, ts := apitest.Start(t)
	st, err := sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return &fixture{srv: srv, api: client.New(ts.URL), store: st, url: ts.URL}
}

func (f *fixture) session(opts ...Option) *Session {
	return New(f.api, f.store, append([]Option{WithBaseURL(f.url)}, opts...)...)
}

func (f *fixture) seedStories(n int) {
	for i := 0; i < n; i++ {
		f.srv.SeedStory("poster", model.NewStory{
			Title:  fmt.Sprintf("story %d", i),
			Author: "Poster",
			URL:    fmt.Sprintf("https://example.com/%d", i),
		})
	}
}

func TestStartAnonymous(t *testing.T) {
	f := newFixture(t)
	f.seedStories(3)
	ctx := context.Background()

	s := f.session()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if s.State() != Anonymous {
		t.Fatalf("expected anonymous, got %s", s.State())
	}
	if len(s.Feed()) != 3 {
		t.Fatalf("expected 3 stories, got %d", len(s.Feed()))
	}
	if s.Favorites() != nil || s.OwnStories() != nil {
		t.Fatalf("anonymous session has no user lists")
	}

	if _, err := s.SubmitStory(ctx, model.NewStory{Title: "t", Author: "a", URL: "https://a.test"}); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("expected ErrNotLoggedIn, got %v", err)
	}
	if _, err := s.ToggleFavorite(ctx, "x"); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("expected ErrNotLoggedIn, got %v", err)
	}
	if err := s.DeleteStory(ctx, "x"); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("expected ErrNotLoggedIn, got %v", err)
	}
	if _, err := s.UpdateProfile(ctx, users.ProfileUpdate{Name: "n"}); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("expected ErrNotLoggedIn, got %v", err)
	}
}

func TestSignupIsResumedByNextSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.session()
	if _, err := first.Signup(ctx, "alice", "pw", "Alice"); err != nil {
		t.Fatalf("signup: %v", err)
	}
	if first.State() != Authenticated {
		t.Fatalf("expected authenticated after signup")
	}

	second := f.session()
	if err := second.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	u := second.CurrentUser()
	if u == nil || u.Username != "alice" {
		t.Fatalf("expected alice to be resumed, got %+v", u)
	}

	if err := second.Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}
	third := f.session()
	if err := third.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if third.State() != Anonymous {
		t.Fatalf("expected anonymous after logout")
	}
}

func TestStaleCredentialsSoftFail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.session().Login(ctx, "nobody", "pw"); err == nil {
		t.Fatalf("expected login to fail for unknown user")
	}
	if _, err := f.session().Signup(ctx, "bob", "pw", "Bob"); err != nil {
		t.Fatalf("signup: %v", err)
	}
	f.srv.RevokeTokens("bob")

	s := f.session()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start must not fail on a stale login: %v", err)
	}
	if s.State() != Anonymous {
		t.Fatalf("expected anonymous with a stale login")
	}
	if _, err := f.store.GetCredentials(ctx, "bob"); err != nil {
		t.Fatalf("stale credentials should be kept: %v", err)
	}
}

func TestCredentialsForOtherAPIAreNotResumed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.session().Signup(ctx, "carol", "pw", "Carol"); err != nil {
		t.Fatalf("signup: %v", err)
	}
	s := New(f.api, f.store, WithBaseURL("https://elsewhere.test"))
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if s.State() != Anonymous {
		t.Fatalf("credentials saved for another API must not be used")
	}
}

func TestSubmitAndDeleteStory(t *testing.T) {
	f := newFixture(t)
	f.seedStories(2)
	ctx := context.Background()

	s := f.session()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := s.Signup(ctx, "dave", "pw", "Dave"); err != nil {
		t.Fatalf("signup: %v", err)
	}

	story, err := s.SubmitStory(ctx, model.NewStory{Title: "Mine", Author: "Dave", URL: "https://dave.test"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if feed := s.Feed(); feed[0].ID != story.ID || len(feed) != 3 {
		t.Fatalf("expected new story at the front of the feed")
	}
	if own := s.OwnStories(); len(own) != 1 || own[0].ID != story.ID {
		t.Fatalf("expected story in own stories, got %+v", own)
	}
	if fav, err := s.ToggleFavorite(ctx, story.ID); err != nil || !fav {
		t.Fatalf("toggle favorite: %v (fav=%v)", err, fav)
	}
	if _, err := f.store.GetCachedStory(ctx, story.ID); err != nil {
		t.Fatalf("submitted story should be cached: %v", err)
	}

	if err := s.DeleteStory(ctx, story.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(s.Feed()) != 2 || len(s.OwnStories()) != 0 || len(s.Favorites()) != 0 {
		t.Fatalf("deleted story still shown: feed=%d own=%d favs=%d", len(s.Feed()), len(s.OwnStories()), len(s.Favorites()))
	}
	if _, err := f.store.GetCachedStory(ctx, story.ID); err == nil {
		t.Fatalf("deleted story should leave the cache")
	}

	if err := s.DeleteStory(ctx, "missing"); !client.IsKind(err, client.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestToggleFavorite(t *testing.T) {
	f := newFixture(t)
	f.seedStories(1)
	ctx := context.Background()

	s := f.session()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := s.Signup(ctx, "erin", "pw", "Erin"); err != nil {
		t.Fatalf("signup: %v", err)
	}
	id := s.Feed()[0].ID

	fav, err := s.ToggleFavorite(ctx, id)
	if err != nil || !fav {
		t.Fatalf("first toggle: %v (fav=%v)", err, fav)
	}
	if len(f.srv.FavoriteIDs("erin")) != 1 {
		t.Fatalf("server should have the favorite")
	}
	fav, err = s.ToggleFavorite(ctx, id)
	if err != nil || fav {
		t.Fatalf("second toggle: %v (fav=%v)", err, fav)
	}
	if len(s.Favorites()) != 0 || len(f.srv.FavoriteIDs("erin")) != 0 {
		t.Fatalf("favorite should be gone everywhere")
	}
}

func TestLoadMoreCachesPages(t *testing.T) {
	f := newFixture(t)
	f.seedStories(5)
	ctx := context.Background()

	s := f.session(WithPageSize(2))
	first, err := s.LoadMore(ctx)
	if err != nil {
		t.Fatalf("load first page: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("expected 2 stories, got %d", len(first))
	}
	for !s.FeedDone() {
		if _, err := s.LoadMore(ctx); err != nil {
			t.Fatalf("load more: %v", err)
		}
	}
	if len(s.Feed()) != 5 {
		t.Fatalf("expected 5 stories, got %d", len(s.Feed()))
	}

	offline := New(f.api, f.store)
	cached, err := offline.LoadCached(ctx, 0)
	if err != nil {
		t.Fatalf("load cached: %v", err)
	}
	if len(cached) != 5 || len(offline.Feed()) != 5 {
		t.Fatalf("expected 5 cached stories, got %d", len(cached))
	}
}

func TestLoadMoreAfterOfflineFeed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stale := []model.Story{
		{ID: "gone-1", Title: "Gone one", Author: "X", URL: "https://gone.test/1"},
		{ID: "gone-2", Title: "Gone two", Author: "X", URL: "https://gone.test/2"},
		{ID: "gone-3", Title: "Gone three", Author: "X", URL: "https://gone.test/3"},
	}
	if err := f.store.CacheStories(ctx, stale); err != nil {
		t.Fatalf("cache stories: %v", err)
	}
	f.seedStories(4)

	s := f.session()
	if _, err := s.LoadCached(ctx, 0); err != nil {
		t.Fatalf("load cached: %v", err)
	}
	if s.FeedDone() {
		t.Fatalf("an offline feed must not report the server feed as done")
	}

	live, err := s.LoadMore(ctx)
	if err != nil {
		t.Fatalf("load more: %v", err)
	}
	if len(live) != 4 || len(s.Feed()) != 4 {
		t.Fatalf("expected the 4 server stories to replace the cached feed, got %d/%d", len(live), len(s.Feed()))
	}
	if f.srv.Hits("GET /stories?limit=25&skip=3") != 0 {
		t.Fatalf("cached stories must not advance the server offset")
	}
	if !s.FeedDone() {
		t.Fatalf("a short first page should finish the feed")
	}
}

func TestSwitchAndProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s := f.session()
	if _, err := s.Signup(ctx, "frank", "pw", "Frank"); err != nil {
		t.Fatalf("signup frank: %v", err)
	}
	if _, err := s.Signup(ctx, "gina", "pw", "Gina"); err != nil {
		t.Fatalf("signup gina: %v", err)
	}

	u, err := s.Switch(ctx, "frank")
	if err != nil {
		t.Fatalf("switch: %v", err)
	}
	if u.Username != "frank" || s.CurrentUser().Username != "frank" {
		t.Fatalf("expected frank to be current")
	}
	if _, err := s.Switch(ctx, "nobody"); err == nil {
		t.Fatalf("expected error for unknown saved login")
	}

	token := f.srv.SeedUser("mallory", "pw", "Mallory")
	err = f.store.SaveCredentials(ctx, store.Credentials{
		Username: "mallory",
		Name:     "Mallory",
		Token:    token,
		BaseURL:  "https://hack-or-snooze-v3.herokuapp.com",
	})
	if err != nil {
		t.Fatalf("save credentials: %v", err)
	}
	if _, err := s.Switch(ctx, "mallory"); err == nil || !strings.Contains(err.Error(), "https://hack-or-snooze-v3.herokuapp.com") {
		t.Fatalf("expected switch to a login for another API to fail, got %v", err)
	}
	if hits := f.srv.Hits("GET /users/mallory"); hits != 0 {
		t.Fatalf("token for another API was sent %d time(s)", hits)
	}
	if current, err := f.store.CurrentCredentials(ctx); err != nil || current.Username != "frank" {
		t.Fatalf("expected frank to stay current, got %q (%v)", current.Username, err)
	}

	res, err := s.UpdateProfile(ctx, users.ProfileUpdate{Name: "Franklin"})
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if res.Message() != "Name Changed!" {
		t.Fatalf("unexpected message %q", res.Message())
	}
	creds, err := f.store.GetCredentials(ctx, "frank")
	if err != nil {
		t.Fatalf("get credentials: %v", err)
	}
	if creds.Name != "Franklin" {
		t.Fatalf("saved name should follow the rename, got %q", creds.Name)
	}
}

func TestStoryLookup(t *testing.T) {
	f := newFixture(t)
	f.seedStories(1)
	ctx := context.Background()
	late := f.srv.SeedStory("poster", model.NewStory{Title: "late", Author: "P", URL: "https://late.test"})

	s := New(f.api, nil, WithPageSize(1))
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	got, err := s.Story(ctx, late.ID)
	if err != nil {
		t.Fatalf("story: %v", err)
	}
	if got.Title != "late" {
		t.Fatalf("unexpected story %+v", got)
	}

	older := f.srv.SeedStory("poster", model.NewStory{Title: "unseen", Author: "P", URL: "https://u.test"})
	got, err = s.Story(ctx, older.ID)
	if err != nil || got.Title != "unseen" {
		t.Fatalf("expected API fallback, got %+v (%v)", got, err)
	}
	if _, err := s.Story(ctx, "missing"); !client.IsKind(err, client.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
