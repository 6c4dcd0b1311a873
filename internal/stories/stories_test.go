package stories

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alphabot-ai/hackorsnooze/internal/apitest"
	"github.com/alphabot-ai/hackorsnooze/internal/client"
	"github.com/alphabot-ai/hackorsnooze/internal/model"
)

func seed(srv *apitest.Server, n int) []model.Story {
	out := make([]model.Story, 0, n)
	for i := 0; i < n; i++ {
		st := srv.SeedStory("alice", model.NewStory{
			Title:  fmt.Sprintf("story %d", i),
			Author: "Alice",
			URL:    fmt.Sprintf("https://example.com/%d", i),
		})
		out = append([]model.Story{st}, out...)
	}
	return out
}

func TestPaginationCoversFeed(t *testing.T) {
	srv, ts := apitest.Start(t)
	want := seed(srv, 12)
	ctx := context.Background()

	list, err := GetStories(ctx, client.New(ts.URL), WithPageSize(5))
	if err != nil {
		t.Fatalf("get stories: %v", err)
	}
	if list.Len() != 5 || list.Done() {
		t.Fatalf("expected first page of 5, got %d (done=%v)", list.Len(), list.Done())
	}

	var deltas []int
	for !list.Done() {
		more, err := list.GetMoreStories(ctx)
		if err != nil {
			t.Fatalf("get more stories: %v", err)
		}
		deltas = append(deltas, len(more))
	}
	if fmt.Sprint(deltas) != "[5 2]" {
		t.Fatalf("unexpected page sizes %v", deltas)
	}

	got := list.Stories()
	if len(got) != len(want) {
		t.Fatalf("expected %d stories, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].ID != want[i].ID {
			t.Fatalf("position %d: expected %s, got %s", i, want[i].ID, got[i].ID)
		}
	}

	more, err := list.GetMoreStories(ctx)
	if err != nil {
		t.Fatalf("get more past the end: %v", err)
	}
	if len(more) != 0 || list.Len() != 12 {
		t.Fatalf("expected empty delta at the end, got %d", len(more))
	}
}

func TestGetStoryByID(t *testing.T) {
	srv, ts := apitest.Start(t)
	want := seed(srv, 3)

	list, err := GetStories(context.Background(), client.New(ts.URL))
	if err != nil {
		t.Fatalf("get stories: %v", err)
	}
	got, ok := list.GetStoryByID(want[1].ID)
	if !ok || got.Title != want[1].Title {
		t.Fatalf("expected %q, got %+v (ok=%v)", want[1].Title, got, ok)
	}
	if _, ok := list.GetStoryByID("missing"); ok {
		t.Fatalf("expected miss for unknown id")
	}
}

func TestAddStoryThenPrepend(t *testing.T) {
	srv, ts := apitest.Start(t)
	seed(srv, 2)
	token := srv.SeedUser("bob", "pw", "Bob")
	api := client.New(ts.URL)
	ctx := context.Background()

	list, err := GetStories(ctx, api)
	if err != nil {
		t.Fatalf("get stories: %v", err)
	}
	before := list.Cursor()

	story, err := AddStory(ctx, api, token, model.NewStory{Title: "fresh", Author: "Bob", URL: "https://bob.example"})
	if err != nil {
		t.Fatalf("add story: %v", err)
	}
	if list.Len() != 2 {
		t.Fatalf("AddStory must not touch the list")
	}
	list.Prepend(story)
	if first := list.Stories()[0]; first.ID != story.ID {
		t.Fatalf("expected new story first, got %s", first.ID)
	}
	if list.Cursor() != before {
		t.Fatalf("prepend must not move the cursor")
	}

	if _, err := AddStory(ctx, api, "bad-token", model.NewStory{Title: "x", Author: "y", URL: "https://z.example"}); !client.IsKind(err, client.KindUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestDeleteStory(t *testing.T) {
	srv, ts := apitest.Start(t)
	token := srv.SeedUser("alice", "pw", "Alice")
	want := seed(srv, 3)
	ctx := context.Background()

	list, err := GetStories(ctx, client.New(ts.URL))
	if err != nil {
		t.Fatalf("get stories: %v", err)
	}
	list.Prepend(want[1])

	removed, err := list.DeleteStory(ctx, token, want[1].ID)
	if err != nil {
		t.Fatalf("delete story: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected both copies removed, got %d", removed)
	}
	if list.Len() != 2 {
		t.Fatalf("expected 2 stories left, got %d", list.Len())
	}
	if _, ok := list.GetStoryByID(want[1].ID); ok {
		t.Fatalf("story still present after delete")
	}

	_, err = list.DeleteStory(ctx, token, "missing")
	if !client.IsKind(err, client.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if list.Len() != 2 {
		t.Fatalf("failed delete must leave the list alone")
	}
}

type failingAPI struct {
	API
}

func (failingAPI) ListStories(ctx context.Context, skip, limit int) ([]model.Story, error) {
	return nil, errors.New("boom")
}

func TestGetMoreStoriesErrorLeavesState(t *testing.T) {
	initial := []model.Story{{ID: "a"}, {ID: "b"}}
	list := NewStoryList(failingAPI{}, initial)

	if _, err := list.GetMoreStories(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if list.Len() != 2 || list.Cursor().Offset() != 2 {
		t.Fatalf("state changed after failed fetch")
	}

	if _, err := GetStories(context.Background(), failingAPI{}); err == nil {
		t.Fatalf("expected GetStories to propagate the error")
	}
}

func TestConcurrentGetMoreStories(t *testing.T) {
	srv, ts := apitest.Start(t)
	seed(srv, 9)
	ctx := context.Background()

	list, err := GetStories(ctx, client.New(ts.URL), WithPageSize(3))
	if err != nil {
		t.Fatalf("get stories: %v", err)
	}
	srv.SetDelay(10 * time.Millisecond)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := list.GetMoreStories(ctx); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("get more stories: %v", err)
	}

	got := list.Stories()
	if len(got) != 9 {
		t.Fatalf("expected 9 stories, got %d", len(got))
	}
	seen := make(map[string]bool)
	for _, s := range got {
		if seen[s.ID] {
			t.Fatalf("story %s fetched twice", s.ID)
		}
		seen[s.ID] = true
	}
}
