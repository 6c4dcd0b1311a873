package model

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

var ErrInvalidURL = errors.New("invalid story url")

type Story struct {
	ID        string    `json:"storyId" yaml:"id"`
	Title     string    `json:"title" yaml:"title"`
	Author    string    `json:"author" yaml:"author"`
	URL       string    `json:"url" yaml:"url"`
	Username  string    `json:"username" yaml:"username"`
	CreatedAt time.Time `json:"createdAt" yaml:"created_at"`
	UpdatedAt time.Time `json:"updatedAt,omitempty" yaml:"updated_at,omitempty"`
}

// HostName returns the host component of the story URL, without port.
func (s Story) HostName() (string, error) {
	u, err := url.Parse(s.URL)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidURL, s.URL, err)
	}
	if !u.IsAbs() || u.Hostname() == "" {
		return "", fmt.Errorf("%w: %q is not an absolute url", ErrInvalidURL, s.URL)
	}
	return u.Hostname(), nil
}

type NewStory struct {
	Title  string `json:"title"`
	Author string `json:"author"`
	URL    string `json:"url"`
}

type Profile struct {
	Username   string    `json:"username" yaml:"username"`
	Name       string    `json:"name" yaml:"name"`
	CreatedAt  time.Time `json:"createdAt" yaml:"created_at"`
	UpdatedAt  time.Time `json:"updatedAt,omitempty" yaml:"updated_at,omitempty"`
	Favorites  []Story   `json:"favorites" yaml:"favorites"`
	OwnStories []Story   `json:"stories" yaml:"stories"`
}

// IndexOf returns the position of the first story with the given id, or -1.
func IndexOf(stories []Story, id string) int {
	for i, s := range stories {
		if s.ID == id {
			return i
		}
	}
	return -1
}

func ContainsID(stories []Story, id string) bool {
	return IndexOf(stories, id) >= 0
}

// RemoveID filters every story with the given id out of stories. The input
// slice is not modified.
func RemoveID(stories []Story, id string) ([]Story, int) {
	out := make([]Story, 0, len(stories))
	removed := 0
	for _, s := range stories {
		if s.ID == id {
			removed++
			continue
		}
		out = append(out, s)
	}
	return out, removed
}

// Dedupe keeps the first occurrence of each id, preserving order.
func Dedupe(stories []Story) []Story {
	seen := make(map[string]struct{}, len(stories))
	out := make([]Story, 0, len(stories))
	for _, s := range stories {
		if _, ok := seen[s.ID]; ok {
			continue
		}
		seen[s.ID] = struct{}{}
		out = append(out, s)
	}
	return out
}
