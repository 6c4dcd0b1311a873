// Package apitest provides an in-memory Hack-or-Snooze API for tests and
// offline demos. It follows the public API's routes, payloads and error
// envelope closely enough for the client to be exercised end to end.
package apitest

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/alphabot-ai/hackorsnooze/internal/model"
)

const (
	DefaultPageSize = 25
	MaxPageSize     = 100
)

type user struct {
	username  string
	name      string
	password  string
	createdAt time.Time
	updatedAt time.Time
	favorites []string
}

// Server is the fake API. The zero value is not usable; call New.
type Server struct {
	mu      sync.Mutex
	users   map[string]*user
	stories []model.Story // newest first
	tokens  map[string]string
	hits    map[string]int
	now     func() time.Time
	delay   time.Duration

	router chi.Router
}

func New() *Server {
	s := &Server{
		users:  make(map[string]*user),
		tokens: make(map[string]string),
		hits:   make(map[string]int),
		now:    time.Now,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.countHits)

	r.Get("/stories", s.handleListStories)
	r.Post("/stories", s.handleCreateStory)
	r.Get("/stories/{storyID}", s.handleGetStory)
	r.Delete("/stories/{storyID}", s.handleDeleteStory)
	r.Post("/signup", s.handleSignup)
	r.Post("/login", s.handleLogin)
	r.Get("/users/{username}", s.handleGetUser)
	r.Patch("/users/{username}", s.handleUpdateUser)
	r.Post("/users/{username}/favorites/{storyID}", s.handleAddFavorite)
	r.Delete("/users/{username}/favorites/{storyID}", s.handleRemoveFavorite)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not Found", "no route for "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed", r.Method+" is not allowed on "+r.URL.Path)
	})
	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) countHits(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.Method+" "+r.URL.Path]++
		if r.URL.RawQuery != "" {
			s.hits[r.Method+" "+r.URL.Path+"?"+r.URL.RawQuery]++
		}
		delay := s.delay
		s.mu.Unlock()
		if delay > 0 {
			time.Sleep(delay)
		}
		next.ServeHTTP(w, r)
	})
}

// SetDelay makes every following request sleep for d before it is handled.
func (s *Server) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Hits returns how many requests matched "METHOD /path" or "METHOD /path?query".
func (s *Server) Hits(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[key]
}

// SeedUser creates a user directly and returns a valid token for it.
func (s *Server) SeedUser(username, password, name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.users[username] = &user{username: username, name: name, password: password, createdAt: now, updatedAt: now}
	return s.issueToken(username)
}

// SeedStory stores a story posted by username and returns it.
func (s *Server) SeedStory(username string, in model.NewStory) model.Story {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertStory(username, in)
}

// StoryCount is the number of stories currently stored.
func (s *Server) StoryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stories)
}

// FavoriteIDs returns the server-side favorites of username.
func (s *Server) FavoriteIDs(username string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return nil
	}
	return append([]string(nil), u.favorites...)
}

// RevokeTokens invalidates every token issued to username.
func (s *Server) RevokeTokens(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for tok, owner := range s.tokens {
		if owner == username {
			delete(s.tokens, tok)
		}
	}
}

func (s *Server) handleListStories(w http.ResponseWriter, r *http.Request) {
	skip := parseIntDefault(r.URL.Query().Get("skip"), 0)
	limit := parseIntDefault(r.URL.Query().Get("limit"), DefaultPageSize)
	if skip < 0 {
		skip = 0
	}
	limit = clamp(limit, 1, MaxPageSize)

	s.mu.Lock()
	page := []model.Story{}
	if skip < len(s.stories) {
		end := skip + limit
		if end > len(s.stories) {
			end = len(s.stories)
		}
		page = append(page, s.stories[skip:end]...)
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"stories": page})
}

func (s *Server) handleGetStory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "storyID")

	s.mu.Lock()
	defer s.mu.Unlock()
	i := model.IndexOf(s.stories, id)
	if i < 0 {
		writeError(w, http.StatusNotFound, "Not Found", "Could not find story with id "+id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"story": s.stories[i]})
}

func (s *Server) handleCreateStory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string         `json:"token"`
		Story model.NewStory `json:"story"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	username, ok := s.authenticate(w, req.Token)
	if !ok {
		return
	}
	if err := validateStory(req.Story); err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	story := s.insertStory(username, req.Story)
	writeJSON(w, http.StatusCreated, map[string]any{"story": story})
}

func (s *Server) handleDeleteStory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "storyID")
	var req struct {
		Token string `json:"token"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	username, ok := s.authenticate(w, req.Token)
	if !ok {
		return
	}
	i := model.IndexOf(s.stories, id)
	if i < 0 {
		writeError(w, http.StatusNotFound, "Not Found", "Could not find story with id "+id)
		return
	}
	story := s.stories[i]
	if story.Username != username {
		writeError(w, http.StatusForbidden, "Forbidden", "You can only delete your own stories")
		return
	}
	s.stories, _ = model.RemoveID(s.stories, id)
	for _, u := range s.users {
		u.favorites = removeString(u.favorites, id)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Deleted story with ID " + id,
		"story":   story,
	})
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		User struct {
			Username string `json:"username"`
			Password string `json:"password"`
			Name     string `json:"name"`
		} `json:"user"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	in := req.User
	if strings.TrimSpace(in.Username) == "" || in.Password == "" || strings.TrimSpace(in.Name) == "" {
		writeError(w, http.StatusBadRequest, "Bad Request", "username, password and name are required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[in.Username]; exists {
		writeError(w, http.StatusConflict, "Conflict", "There is already a user with username '"+in.Username+"'.")
		return
	}
	now := s.now()
	u := &user{username: in.Username, name: in.Name, password: in.Password, createdAt: now, updatedAt: now}
	s.users[u.username] = u
	token := s.issueToken(u.username)
	writeJSON(w, http.StatusCreated, map[string]any{"token": token, "user": s.profile(u)})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		User struct {
			Username string `json:"username"`
			Password string `json:"password"`
		} `json:"user"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if req.User.Username == "" || req.User.Password == "" {
		writeError(w, http.StatusBadRequest, "Bad Request", "username and password are required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[req.User.Username]
	if !ok {
		writeError(w, http.StatusNotFound, "Not Found", "No such user: "+req.User.Username)
		return
	}
	if u.password != req.User.Password {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "Invalid password.")
		return
	}
	token := s.issueToken(u.username)
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "user": s.profile(u)})
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.authenticate(w, r.URL.Query().Get("token")); !ok {
		return
	}
	u, ok := s.users[username]
	if !ok {
		writeError(w, http.StatusNotFound, "Not Found", "No such user: "+username)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": s.profile(u)})
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	var req struct {
		Token string `json:"token"`
		User  struct {
			Name     string `json:"name"`
			Password string `json:"password"`
		} `json:"user"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.authorizeUser(w, req.Token, username)
	if !ok {
		return
	}
	if req.User.Name == "" && req.User.Password == "" {
		writeError(w, http.StatusBadRequest, "Bad Request", "nothing to update")
		return
	}
	if req.User.Name != "" {
		u.name = req.User.Name
	}
	if req.User.Password != "" {
		u.password = req.User.Password
	}
	u.updatedAt = s.now()
	writeJSON(w, http.StatusOK, map[string]any{"user": s.profile(u)})
}

func (s *Server) handleAddFavorite(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	storyID := chi.URLParam(r, "storyID")

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.authorizeUser(w, r.URL.Query().Get("token"), username)
	if !ok {
		return
	}
	if model.IndexOf(s.stories, storyID) < 0 {
		writeError(w, http.StatusNotFound, "Not Found", "Could not find story with id "+storyID)
		return
	}
	if !containsString(u.favorites, storyID) {
		u.favorites = append(u.favorites, storyID)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Favorite Added Successfully!",
		"user":    s.profile(u),
	})
}

func (s *Server) handleRemoveFavorite(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	storyID := chi.URLParam(r, "storyID")

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.authorizeUser(w, r.URL.Query().Get("token"), username)
	if !ok {
		return
	}
	u.favorites = removeString(u.favorites, storyID)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Favorite Removed Successfully!",
		"user":    s.profile(u),
	})
}

// authenticate resolves token to a username. Callers hold s.mu.
func (s *Server) authenticate(w http.ResponseWriter, token string) (string, bool) {
	if token == "" {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "Missing token")
		return "", false
	}
	username, ok := s.tokens[token]
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "Invalid token")
		return "", false
	}
	return username, true
}

// authorizeUser checks that token belongs to username. Callers hold s.mu.
func (s *Server) authorizeUser(w http.ResponseWriter, token, username string) (*user, bool) {
	owner, ok := s.authenticate(w, token)
	if !ok {
		return nil, false
	}
	if owner != username {
		writeError(w, http.StatusForbidden, "Forbidden", "You cannot act on behalf of another user")
		return nil, false
	}
	u, ok := s.users[username]
	if !ok {
		writeError(w, http.StatusNotFound, "Not Found", "No such user: "+username)
		return nil, false
	}
	return u, true
}

func (s *Server) insertStory(username string, in model.NewStory) model.Story {
	now := s.now()
	story := model.Story{
		ID:        uuid.NewString(),
		Title:     in.Title,
		Author:    in.Author,
		URL:       in.URL,
		Username:  username,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.stories = append([]model.Story{story}, s.stories...)
	return story
}

func (s *Server) profile(u *user) model.Profile {
	p := model.Profile{
		Username:   u.username,
		Name:       u.name,
		CreatedAt:  u.createdAt,
		UpdatedAt:  u.updatedAt,
		Favorites:  []model.Story{},
		OwnStories: []model.Story{},
	}
	for _, id := range u.favorites {
		if i := model.IndexOf(s.stories, id); i >= 0 {
			p.Favorites = append(p.Favorites, s.stories[i])
		}
	}
	for _, st := range s.stories {
		if st.Username == u.username {
			p.OwnStories = append(p.OwnStories, st)
		}
	}
	return p
}

func (s *Server) issueToken(username string) string {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("apitest: random token: %v", err))
	}
	token := base64.RawURLEncoding.EncodeToString(b)
	s.tokens[token] = username
	return token
}

func validateStory(in model.NewStory) error {
	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Author) == "" || strings.TrimSpace(in.URL) == "" {
		return errors.New("title, author and url are required")
	}
	if u, err := url.ParseRequestURI(in.URL); err != nil || u.Host == "" {
		return errors.New("url must be an absolute url")
	}
	return nil
}

func readJSON(body io.ReadCloser, dest any) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	if err := dec.Decode(dest); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, title, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"status": status, "title": title, "message": message},
	})
}

func parseIntDefault(value string, def int) int {
	if value == "" {
		return def
	}
	if n, err := strconv.Atoi(value); err == nil {
		return n
	}
	return def
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func removeString(list []string, v string) []string {
	out := list[:0]
	for _, s := range list {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}
