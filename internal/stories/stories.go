// Package stories holds the feed: an ordered, paginated list of stories
// fetched from the API.
package stories

import (
	"context"
	"sync"

	"github.com/alphabot-ai/hackorsnooze/internal/client"
	"github.com/alphabot-ai/hackorsnooze/internal/model"
)

// DefaultPageSize matches the API's own default page length.
const DefaultPageSize = 25

// API is the subset of the Hack-or-Snooze API the feed needs.
type API interface {
	ListStories(ctx context.Context, skip, limit int) ([]model.Story, error)
	CreateStory(ctx context.Context, token string, story model.NewStory) (model.Story, error)
	DeleteStory(ctx context.Context, token, id string) error
}

var _ API = (*client.Client)(nil)

// Cursor marks a position in the server's feed. It counts stories received
// from the server, so local inserts and deletes never shift it.
type Cursor struct {
	offset int
}

// Offset is the number of server stories before the cursor.
func (c Cursor) Offset() int { return c.offset }

// Page is one fetched slice of the feed.
type Page struct {
	Stories []model.Story
	Next    Cursor
	Done    bool
}

// FetchPage fetches limit stories starting at cursor. A short or empty page
// means the end of the feed was reached.
func FetchPage(ctx context.Context, api API, cursor Cursor, limit int) (Page, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	fetched, err := api.ListStories(ctx, cursor.offset, limit)
	if err != nil {
		return Page{}, err
	}
	return Page{
		Stories: fetched,
		Next:    Cursor{offset: cursor.offset + len(fetched)},
		Done:    len(fetched) < limit,
	}, nil
}

// StoryList is the feed as seen by this client. All methods are safe for
// concurrent use.
type StoryList struct {
	api      API
	pageSize int

	// fetchMu serializes page fetches so two callers never request the
	// same offset.
	fetchMu sync.Mutex

	mu      sync.Mutex
	stories []model.Story
	cursor  Cursor
	done    bool
}

type Option func(*StoryList)

func WithPageSize(n int) Option {
	return func(l *StoryList) {
		if n > 0 {
			l.pageSize = n
		}
	}
}

// NewStoryList wraps already-fetched stories, taken as the head of the
// server feed: the cursor starts after them.
func NewStoryList(api API, initial []model.Story, opts ...Option) *StoryList {
	l := &StoryList{api: api, pageSize: DefaultPageSize}
	for _, opt := range opts {
		opt(l)
	}
	l.stories = append([]model.Story(nil), initial...)
	l.cursor = Cursor{offset: len(initial)}
	return l
}

// GetStories fetches the first page of the feed.
func GetStories(ctx context.Context, api API, opts ...Option) (*StoryList, error) {
	l := NewStoryList(api, nil, opts...)
	page, err := FetchPage(ctx, api, Cursor{}, l.pageSize)
	if err != nil {
		return nil, err
	}
	l.stories = page.Stories
	l.cursor = page.Next
	l.done = page.Done
	return l, nil
}

// GetMoreStories fetches the next page, appends it and returns what was
// appended. On error nothing changes.
func (l *StoryList) GetMoreStories(ctx context.Context) ([]model.Story, error) {
	l.fetchMu.Lock()
	defer l.fetchMu.Unlock()

	l.mu.Lock()
	cursor := l.cursor
	l.mu.Unlock()

	page, err := FetchPage(ctx, l.api, cursor, l.pageSize)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.stories = append(l.stories, page.Stories...)
	l.cursor = page.Next
	l.done = page.Done
	l.mu.Unlock()

	return append([]model.Story(nil), page.Stories...), nil
}

// Done reports whether the last fetched page was the final one.
func (l *StoryList) Done() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done
}

// Cursor returns the position the next GetMoreStories call will fetch from.
func (l *StoryList) Cursor() Cursor {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cursor
}

// AddStory posts a story as the token's owner. It does not touch any list;
// callers decide where the returned story goes.
func AddStory(ctx context.Context, api API, token string, in model.NewStory) (model.Story, error) {
	story, err := api.CreateStory(ctx, token, in)
	if err != nil {
		return model.Story{}, err
	}
	return story, nil
}

// Prepend inserts story at the front of the feed.
func (l *StoryList) Prepend(story model.Story) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stories = append([]model.Story{story}, l.stories...)
}

// DeleteStory deletes id on the server and then drops every local entry with
// that id, returning how many were dropped.
func (l *StoryList) DeleteStory(ctx context.Context, token, id string) (int, error) {
	if err := l.api.DeleteStory(ctx, token, id); err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	var removed int
	l.stories, removed = model.RemoveID(l.stories, id)
	return removed, nil
}

// GetStoryByID returns the first story with id.
func (l *StoryList) GetStoryByID(id string) (model.Story, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i := model.IndexOf(l.stories, id); i >= 0 {
		return l.stories[i], true
	}
	return model.Story{}, false
}

// Stories returns a copy of the feed in display order.
func (l *StoryList) Stories() []model.Story {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.Story(nil), l.stories...)
}

func (l *StoryList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.stories)
}
