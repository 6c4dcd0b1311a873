// Package users models the logged-in account: its token, profile, favorites
// and own stories.
package users

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/alphabot-ai/hackorsnooze/internal/client"
	"github.com/alphabot-ai/hackorsnooze/internal/model"
)

// API is the subset of the Hack-or-Snooze API that accounts need.
type API interface {
	Signup(ctx context.Context, username, password, name string) (client.AuthResult, error)
	Login(ctx context.Context, username, password string) (client.AuthResult, error)
	GetUser(ctx context.Context, token, username string) (model.Profile, error)
	UpdateUser(ctx context.Context, token, username string, update client.UserUpdate) (model.Profile, error)
	AddFavorite(ctx context.Context, token, username, storyID string) (model.Profile, error)
	RemoveFavorite(ctx context.Context, token, username, storyID string) (model.Profile, error)
}

var _ API = (*client.Client)(nil)

// StoryLookup finds a story already known locally, usually in the feed.
type StoryLookup interface {
	GetStoryByID(id string) (model.Story, bool)
}

// User is an authenticated account. Username and CreatedAt never change;
// everything else is read through accessors.
type User struct {
	Username  string
	CreatedAt time.Time

	api API

	mu         sync.Mutex
	name       string
	token      string
	favorites  []model.Story
	ownStories []model.Story
}

// FromProfile builds a User around a profile the server returned for token.
func FromProfile(api API, profile model.Profile, token string) *User {
	return &User{
		Username:   profile.Username,
		CreatedAt:  profile.CreatedAt,
		api:        api,
		name:       profile.Name,
		token:      token,
		favorites:  model.Dedupe(profile.Favorites),
		ownStories: append([]model.Story(nil), profile.OwnStories...),
	}
}

// Signup registers a new account and returns it logged in.
func Signup(ctx context.Context, api API, username, password, name string) (*User, error) {
	res, err := api.Signup(ctx, username, password, name)
	if err != nil {
		return nil, err
	}
	return FromProfile(api, res.Profile, res.Token), nil
}

// Login authenticates with a username and password.
func Login(ctx context.Context, api API, username, password string) (*User, error) {
	res, err := api.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}
	return FromProfile(api, res.Profile, res.Token), nil
}

// LoginViaStoredCredentials resumes a session from a saved token. Any failure
// is logged and reported as a nil User.
func LoginViaStoredCredentials(ctx context.Context, api API, token, username string) *User {
	if token == "" || username == "" {
		return nil
	}
	profile, err := api.GetUser(ctx, token, username)
	if err != nil {
		logrus.WithError(err).WithField("username", username).Warn("stored credentials rejected")
		return nil
	}
	return FromProfile(api, profile, token)
}

func (u *User) Token() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.token
}

func (u *User) DisplayName() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.name
}

// Favorites returns a copy of the favorite stories in the order they were added.
func (u *User) Favorites() []model.Story {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]model.Story(nil), u.favorites...)
}

// OwnStories returns a copy of the user's own stories, newest first.
func (u *User) OwnStories() []model.Story {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]model.Story(nil), u.ownStories...)
}

func (u *User) IsFavorite(id string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return model.ContainsID(u.favorites, id)
}

// IsOwnStory reports whether id was posted by this user.
func (u *User) IsOwnStory(id string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return model.ContainsID(u.ownStories, id)
}

// AddOwnStory records a story the user just posted.
func (u *User) AddOwnStory(story model.Story) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if model.ContainsID(u.ownStories, story.ID) {
		return
	}
	u.ownStories = append([]model.Story{story}, u.ownStories...)
}

// ForgetStory drops a deleted story from favorites and own stories.
func (u *User) ForgetStory(id string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.favorites, _ = model.RemoveID(u.favorites, id)
	u.ownStories, _ = model.RemoveID(u.ownStories, id)
}

// AddFavorite marks storyID as a favorite on the server and, once the server
// agrees, locally. The returned story comes from the server's answer, or from
// lookup when the answer does not carry it.
func (u *User) AddFavorite(ctx context.Context, storyID string, lookup StoryLookup) (model.Story, error) {
	profile, err := u.api.AddFavorite(ctx, u.Token(), u.Username, storyID)
	if err != nil {
		return model.Story{}, err
	}

	story, ok := findStory(profile.Favorites, storyID)
	if !ok && lookup != nil {
		story, ok = lookup.GetStoryByID(storyID)
	}
	if !ok {
		logrus.WithField("story_id", storyID).Warn("favorite added but story details unavailable")
		story = model.Story{ID: storyID}
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if !model.ContainsID(u.favorites, storyID) {
		u.favorites = append(u.favorites, story)
	}
	return story, nil
}

// DeleteFavorite unmarks storyID on the server, then locally.
func (u *User) DeleteFavorite(ctx context.Context, storyID string) error {
	if _, err := u.api.RemoveFavorite(ctx, u.Token(), u.Username, storyID); err != nil {
		return err
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	u.favorites, _ = model.RemoveID(u.favorites, storyID)
	return nil
}

// Refresh reloads name, favorites and own stories from the server.
func (u *User) Refresh(ctx context.Context) error {
	profile, err := u.api.GetUser(ctx, u.Token(), u.Username)
	if err != nil {
		return err
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	u.name = profile.Name
	u.favorites = model.Dedupe(profile.Favorites)
	u.ownStories = append([]model.Story(nil), profile.OwnStories...)
	return nil
}

// UpdateName changes the display name. The local name changes only after the
// server accepted it.
func (u *User) UpdateName(ctx context.Context, name string) error {
	profile, err := u.api.UpdateUser(ctx, u.Token(), u.Username, client.UserUpdate{Name: name})
	if err != nil {
		return err
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if profile.Name != "" {
		u.name = profile.Name
	} else {
		u.name = name
	}
	return nil
}

// UpdatePassword changes the password. The password is never kept.
func (u *User) UpdatePassword(ctx context.Context, password string) error {
	_, err := u.api.UpdateUser(ctx, u.Token(), u.Username, client.UserUpdate{Password: password})
	return err
}

// ProfileUpdate lists the requested changes. Empty fields are left alone.
type ProfileUpdate struct {
	Name     string
	Password string
}

// ProfileResult reports each half of a profile update separately, since the
// two are sent as independent requests.
type ProfileResult struct {
	NameChanged     bool
	PasswordChanged bool
	NameErr         error
	PasswordErr     error
}

func (r ProfileResult) Message() string {
	switch {
	case r.NameChanged && r.PasswordChanged:
		return "Name and Password Changed!"
	case r.NameChanged:
		return "Name Changed!"
	case r.PasswordChanged:
		return "Password Changed!"
	default:
		return "Failed to Update Profile!"
	}
}

// Err joins whichever halves failed.
func (r ProfileResult) Err() error {
	return errors.Join(r.NameErr, r.PasswordErr)
}

// UpdateProfile applies the non-empty fields of update. It is not atomic: the
// name can change while the password update fails, and the other way round.
func (u *User) UpdateProfile(ctx context.Context, update ProfileUpdate) ProfileResult {
	var res ProfileResult
	if update.Name != "" {
		res.NameErr = u.UpdateName(ctx, update.Name)
		res.NameChanged = res.NameErr == nil
	}
	if update.Password != "" {
		res.PasswordErr = u.UpdatePassword(ctx, update.Password)
		res.PasswordChanged = res.PasswordErr == nil
	}
	return res
}

func findStory(stories []model.Story, id string) (model.Story, bool) {
	if i := model.IndexOf(stories, id); i >= 0 {
		return stories[i], true
	}
	return model.Story{}, false
}
