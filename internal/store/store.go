package store

import (
	"context"
	"errors"
	"time"

	"github.com/alphabot-ai/hackorsnooze/internal/model"
)

var (
	ErrNotFound = errors.New("not found")
)

// Credentials is a saved login: enough to resume a session without asking
// for the password again.
type Credentials struct {
	Username string
	Name     string
	Token    string
	BaseURL  string
	SavedAt  time.Time
}

type Store interface {
	CredentialStore
	StoryCache
	Close() error
}

type CredentialStore interface {
	SaveCredentials(ctx context.Context, creds Credentials) error
	GetCredentials(ctx context.Context, username string) (Credentials, error)
	ListCredentials(ctx context.Context) ([]Credentials, error)
	DeleteCredentials(ctx context.Context, username string) error
	// CurrentCredentials returns the credentials marked current, or
	// ErrNotFound when nobody is logged in.
	CurrentCredentials(ctx context.Context) (Credentials, error)
	SetCurrent(ctx context.Context, username string) error
	ClearCurrent(ctx context.Context) error
}

type StoryCache interface {
	CacheStories(ctx context.Context, stories []model.Story) error
	ListCachedStories(ctx context.Context, limit int) ([]model.Story, error)
	GetCachedStory(ctx context.Context, id string) (model.Story, error)
	DeleteCachedStory(ctx context.Context, id string) error
}
