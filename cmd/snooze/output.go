package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/alphabot-ai/hackorsnooze/internal/model"
	"github.com/alphabot-ai/hackorsnooze/internal/users"
)

var (
	colourTitle   = color.New(color.FgCyan, color.Bold)
	colourMuted   = color.New(color.FgHiBlack)
	colourStar    = color.New(color.FgYellow)
	colourError   = color.New(color.FgRed, color.Bold)
	colourSuccess = color.New(color.FgGreen)
	colourInfo    = color.New(color.FgBlue)
)

// storyView is the json/yaml shape of a story.
type storyView struct {
	ID        string    `json:"id" yaml:"id"`
	Title     string    `json:"title" yaml:"title"`
	Author    string    `json:"author" yaml:"author"`
	URL       string    `json:"url" yaml:"url"`
	Host      string    `json:"host,omitempty" yaml:"host,omitempty"`
	Username  string    `json:"username" yaml:"username"`
	CreatedAt time.Time `json:"createdAt" yaml:"created_at"`
	Favorite  *bool     `json:"favorite,omitempty" yaml:"favorite,omitempty"`
}

type userView struct {
	Username   string `json:"username" yaml:"username"`
	Name       string `json:"name" yaml:"name"`
	CreatedAt  string `json:"createdAt" yaml:"created_at"`
	Favorites  int    `json:"favorites" yaml:"favorites"`
	OwnStories int    `json:"stories" yaml:"stories"`
	API        string `json:"api" yaml:"api"`
}

func newStoryView(s model.Story, u *users.User) storyView {
	v := storyView{
		ID:        s.ID,
		Title:     s.Title,
		Author:    s.Author,
		URL:       s.URL,
		Username:  s.Username,
		CreatedAt: s.CreatedAt,
	}
	if host, err := s.HostName(); err == nil {
		v.Host = host
	}
	if u != nil {
		fav := u.IsFavorite(s.ID)
		v.Favorite = &fav
	}
	return v
}

// writeStructured writes v as json or yaml. It reports false for text output,
// which callers render themselves.
func writeStructured(w io.Writer, format string, v any) (bool, error) {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return true, err
		}
		return true, enc.Close()
	default:
		return false, nil
	}
}

// printStories renders a story list. A nil user hides the favorite stars,
// like the logged-out feed.
func printStories(w io.Writer, format string, list []model.Story, u *users.User, empty string) error {
	views := make([]storyView, 0, len(list))
	for _, s := range list {
		views = append(views, newStoryView(s, u))
	}
	if ok, err := writeStructured(w, format, views); ok {
		return err
	}

	if len(list) == 0 {
		colourInfo.Fprintln(w, empty)
		return nil
	}
	for _, v := range views {
		printStoryLine(w, v)
	}
	return nil
}

// printStoryLine prints "title (hostname) by author, posted by username".
func printStoryLine(w io.Writer, v storyView) {
	if v.Favorite != nil {
		if *v.Favorite {
			colourStar.Fprint(w, "★ ")
		} else {
			fmt.Fprint(w, "☆ ")
		}
	}
	host := v.Host
	if host == "" {
		host = "invalid url"
	}
	colourTitle.Fprint(w, v.Title)
	fmt.Fprintf(w, " (%s) by %s, posted by %s\n", host, v.Author, v.Username)
	colourMuted.Fprintf(w, "    %s  %s\n", v.ID, v.URL)
}

func printStory(w io.Writer, format string, s model.Story, u *users.User) error {
	v := newStoryView(s, u)
	if ok, err := writeStructured(w, format, v); ok {
		return err
	}
	printStoryLine(w, v)
	if !s.CreatedAt.IsZero() {
		colourMuted.Fprintf(w, "    posted %s\n", s.CreatedAt.Local().Format(time.RFC1123))
	}
	return nil
}

func printUser(w io.Writer, format string, u *users.User, api string) error {
	v := userView{
		Username:   u.Username,
		Name:       u.DisplayName(),
		Favorites:  len(u.Favorites()),
		OwnStories: len(u.OwnStories()),
		API:        api,
	}
	if !u.CreatedAt.IsZero() {
		v.CreatedAt = u.CreatedAt.Format(time.RFC3339)
	}
	if ok, err := writeStructured(w, format, v); ok {
		return err
	}

	fmt.Fprintf(w, "Username:        %s\n", v.Username)
	fmt.Fprintf(w, "Name:            %s\n", v.Name)
	if v.CreatedAt != "" {
		fmt.Fprintf(w, "Account created: %s\n", v.CreatedAt)
	}
	fmt.Fprintf(w, "Favorites:       %d\n", v.Favorites)
	fmt.Fprintf(w, "Stories:         %d\n", v.OwnStories)
	fmt.Fprintf(w, "Server:          %s\n", v.API)
	return nil
}

func successf(w io.Writer, format string, args ...any) {
	colourSuccess.Fprintf(w, "✓ "+format+"\n", args...)
}
