// Package session ties the feed, the logged-in user and the local store
// together. One Session is one running client.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/alphabot-ai/hackorsnooze/internal/client"
	"github.com/alphabot-ai/hackorsnooze/internal/model"
	"github.com/alphabot-ai/hackorsnooze/internal/store"
	"github.com/alphabot-ai/hackorsnooze/internal/stories"
	"github.com/alphabot-ai/hackorsnooze/internal/users"
)

var ErrNotLoggedIn = errors.New("not logged in")

type State int

const (
	Anonymous State = iota
	Authenticated
)

func (s State) String() string {
	if s == Authenticated {
		return "authenticated"
	}
	return "anonymous"
}

type API interface {
	stories.API
	users.API
	GetStory(ctx context.Context, id string) (model.Story, error)
}

var _ API = (*client.Client)(nil)

// Store is the persistence a session uses. It may be nil, in which case
// nothing survives the process.
type Store interface {
	store.CredentialStore
	store.StoryCache
}

type Session struct {
	api      API
	store    Store
	baseURL  string
	pageSize int

	mu   sync.Mutex
	user *users.User
	feed *stories.StoryList
	// offline is set while feed holds cached stories rather than a server
	// prefix; such a feed has no valid cursor.
	offline bool
}

type Option func(*Session)

// WithBaseURL records which API saved credentials belong to. Credentials
// saved for another base URL are not resumed.
func WithBaseURL(u string) Option {
	return func(s *Session) { s.baseURL = u }
}

func WithPageSize(n int) Option {
	return func(s *Session) { s.pageSize = n }
}

func New(api API, st Store, opts ...Option) *Session {
	s := &Session{api: api, store: st, pageSize: stories.DefaultPageSize}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start resumes the current saved login, if any, and loads the first page of
// the feed. A rejected saved login leaves the session anonymous; only a feed
// failure is returned.
func (s *Session) Start(ctx context.Context) error {
	s.Resume(ctx)
	_, err := s.loadFeed(ctx)
	return err
}

// Resume logs in with the current saved credentials, if there are any and
// the API still accepts them, and reports the resulting state.
func (s *Session) Resume(ctx context.Context) State {
	if s.store == nil || s.State() == Authenticated {
		return s.State()
	}
	creds, err := s.store.CurrentCredentials(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logrus.WithError(err).Warn("could not read saved login")
		}
		return Anonymous
	}
	if !s.sameAPI(creds) {
		logrus.WithFields(logrus.Fields{"username": creds.Username, "saved_for": creds.BaseURL}).
			Warn("saved login belongs to another API, not resuming")
		return Anonymous
	}
	if u := users.LoginViaStoredCredentials(ctx, s.api, creds.Token, creds.Username); u != nil {
		s.setUser(u)
		return Authenticated
	}
	return Anonymous
}

// loadFeed fetches the first page and returns it.
func (s *Session) loadFeed(ctx context.Context) ([]model.Story, error) {
	feed, err := stories.GetStories(ctx, s.api, stories.WithPageSize(s.pageSize))
	if err != nil {
		return nil, fmt.Errorf("load stories: %w", err)
	}
	s.mu.Lock()
	s.feed = feed
	s.offline = false
	s.mu.Unlock()

	page := feed.Stories()
	s.cache(ctx, page)
	return page, nil
}

// LoadCached replaces the feed with up to limit stories from the local cache.
// The next LoadMore starts over from the first server page.
func (s *Session) LoadCached(ctx context.Context, limit int) ([]model.Story, error) {
	if s.store == nil {
		return nil, errors.New("no local cache configured")
	}
	cached, err := s.store.ListCachedStories(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("read cache: %w", err)
	}
	s.mu.Lock()
	s.feed = stories.NewStoryList(s.api, cached, stories.WithPageSize(s.pageSize))
	s.offline = true
	s.mu.Unlock()
	return cached, nil
}

// LoadMore fetches the next page of the feed and returns only the new
// stories. The first call on a fresh or offline session loads the first
// page and replaces the feed with it.
func (s *Session) LoadMore(ctx context.Context) ([]model.Story, error) {
	s.mu.Lock()
	feed, offline := s.feed, s.offline
	s.mu.Unlock()
	if feed == nil || offline {
		return s.loadFeed(ctx)
	}
	more, err := feed.GetMoreStories(ctx)
	if err != nil {
		return nil, fmt.Errorf("load more stories: %w", err)
	}
	s.cache(ctx, more)
	return more, nil
}

// FeedDone reports whether the whole feed has been fetched.
func (s *Session) FeedDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feed != nil && !s.offline && s.feed.Done()
}

func (s *Session) Signup(ctx context.Context, username, password, name string) (*users.User, error) {
	u, err := users.Signup(ctx, s.api, username, password, name)
	if err != nil {
		return nil, err
	}
	if err := s.remember(ctx, u); err != nil {
		return nil, err
	}
	s.setUser(u)
	return u, nil
}

func (s *Session) Login(ctx context.Context, username, password string) (*users.User, error) {
	u, err := users.Login(ctx, s.api, username, password)
	if err != nil {
		return nil, err
	}
	if err := s.remember(ctx, u); err != nil {
		return nil, err
	}
	s.setUser(u)
	return u, nil
}

// Switch makes another saved login current and resumes it.
func (s *Session) Switch(ctx context.Context, username string) (*users.User, error) {
	if s.store == nil {
		return nil, errors.New("no credential store configured")
	}
	creds, err := s.store.GetCredentials(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("saved login %s: %w", username, err)
	}
	if !s.sameAPI(creds) {
		return nil, fmt.Errorf("saved login for %s belongs to %s, not %s", username, creds.BaseURL, s.baseURL)
	}
	u := users.LoginViaStoredCredentials(ctx, s.api, creds.Token, creds.Username)
	if u == nil {
		return nil, fmt.Errorf("saved login for %s was rejected, log in again", username)
	}
	if err := s.store.SetCurrent(ctx, username); err != nil {
		return nil, fmt.Errorf("set current login: %w", err)
	}
	s.setUser(u)
	return u, nil
}

// Logout forgets the current user. Saved credentials stay available for
// Switch; only the current marker is cleared.
func (s *Session) Logout(ctx context.Context) error {
	s.setUser(nil)
	if s.store == nil {
		return nil
	}
	if err := s.store.ClearCurrent(ctx); err != nil {
		return fmt.Errorf("clear current login: %w", err)
	}
	return nil
}

// SubmitStory posts a story and puts it at the front of the feed and of the
// user's own stories.
func (s *Session) SubmitStory(ctx context.Context, in model.NewStory) (model.Story, error) {
	u, err := s.requireUser()
	if err != nil {
		return model.Story{}, err
	}
	story, err := stories.AddStory(ctx, s.api, u.Token(), in)
	if err != nil {
		return model.Story{}, err
	}
	if feed := s.currentFeed(); feed != nil {
		feed.Prepend(story)
	}
	u.AddOwnStory(story)
	s.cache(ctx, []model.Story{story})
	return story, nil
}

// DeleteStory deletes one of the user's stories everywhere it is shown.
func (s *Session) DeleteStory(ctx context.Context, id string) error {
	u, err := s.requireUser()
	if err != nil {
		return err
	}
	feed := s.currentFeed()
	if feed == nil {
		feed = stories.NewStoryList(s.api, nil)
	}
	if _, err := feed.DeleteStory(ctx, u.Token(), id); err != nil {
		return err
	}
	u.ForgetStory(id)
	if s.store != nil {
		if err := s.store.DeleteCachedStory(ctx, id); err != nil {
			logrus.WithError(err).WithField("story_id", id).Warn("could not drop story from cache")
		}
	}
	return nil
}

// AddFavorite marks id as a favorite and returns the story.
func (s *Session) AddFavorite(ctx context.Context, id string) (model.Story, error) {
	u, err := s.requireUser()
	if err != nil {
		return model.Story{}, err
	}
	return u.AddFavorite(ctx, id, s.lookup())
}

func (s *Session) RemoveFavorite(ctx context.Context, id string) error {
	u, err := s.requireUser()
	if err != nil {
		return err
	}
	return u.DeleteFavorite(ctx, id)
}

// ToggleFavorite flips the favorite state of id and returns the new state.
func (s *Session) ToggleFavorite(ctx context.Context, id string) (bool, error) {
	u, err := s.requireUser()
	if err != nil {
		return false, err
	}
	if u.IsFavorite(id) {
		if err := u.DeleteFavorite(ctx, id); err != nil {
			return true, err
		}
		return false, nil
	}
	if _, err := u.AddFavorite(ctx, id, s.lookup()); err != nil {
		return false, err
	}
	return true, nil
}

// UpdateProfile applies a name and/or password change. The saved display
// name follows a successful rename.
func (s *Session) UpdateProfile(ctx context.Context, update users.ProfileUpdate) (users.ProfileResult, error) {
	u, err := s.requireUser()
	if err != nil {
		return users.ProfileResult{}, err
	}
	res := u.UpdateProfile(ctx, update)
	if res.NameChanged {
		if err := s.remember(ctx, u); err != nil {
			logrus.WithError(err).Warn("could not update saved login")
		}
	}
	return res, nil
}

// Story finds id in the feed, then in the user's lists, then asks the API.
func (s *Session) Story(ctx context.Context, id string) (model.Story, error) {
	if feed := s.currentFeed(); feed != nil {
		if st, ok := feed.GetStoryByID(id); ok {
			return st, nil
		}
	}
	if u := s.CurrentUser(); u != nil {
		for _, list := range [][]model.Story{u.Favorites(), u.OwnStories()} {
			if i := model.IndexOf(list, id); i >= 0 {
				return list[i], nil
			}
		}
	}
	return s.api.GetStory(ctx, id)
}

// Feed returns the loaded feed, or nil before anything was loaded.
func (s *Session) Feed() []model.Story {
	if feed := s.currentFeed(); feed != nil {
		return feed.Stories()
	}
	return nil
}

func (s *Session) Favorites() []model.Story {
	if u := s.CurrentUser(); u != nil {
		return u.Favorites()
	}
	return nil
}

func (s *Session) OwnStories() []model.Story {
	if u := s.CurrentUser(); u != nil {
		return u.OwnStories()
	}
	return nil
}

func (s *Session) CurrentUser() *users.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

func (s *Session) State() State {
	if s.CurrentUser() != nil {
		return Authenticated
	}
	return Anonymous
}

func (s *Session) requireUser() (*users.User, error) {
	if u := s.CurrentUser(); u != nil {
		return u, nil
	}
	return nil, ErrNotLoggedIn
}

func (s *Session) setUser(u *users.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = u
}

func (s *Session) currentFeed() *stories.StoryList {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feed
}

func (s *Session) lookup() users.StoryLookup {
	if feed := s.currentFeed(); feed != nil {
		return feed
	}
	return nil
}

func (s *Session) remember(ctx context.Context, u *users.User) error {
	if s.store == nil {
		return nil
	}
	creds := store.Credentials{
		Username: u.Username,
		Name:     u.DisplayName(),
		Token:    u.Token(),
		BaseURL:  s.baseURL,
	}
	if err := s.store.SaveCredentials(ctx, creds); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	if err := s.store.SetCurrent(ctx, u.Username); err != nil {
		return fmt.Errorf("set current login: %w", err)
	}
	return nil
}

// sameAPI reports whether creds may be sent to this session's API. Logins
// saved without a base URL are accepted anywhere.
func (s *Session) sameAPI(creds store.Credentials) bool {
	return s.baseURL == "" || creds.BaseURL == "" || creds.BaseURL == s.baseURL
}

func (s *Session) cache(ctx context.Context, list []model.Story) {
	if s.store == nil || len(list) == 0 {
		return
	}
	if err := s.store.CacheStories(ctx, list); err != nil {
		logrus.WithError(err).Warn("could not cache stories")
	}
}
