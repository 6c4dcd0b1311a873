package model

import (
	"errors"
	"testing"
)

func TestHostName(t *testing.T) {
	s := Story{URL: "https://example.com/foo"}
	host, err := s.HostName()
	if err != nil {
		t.Fatalf("host name: %v", err)
	}
	if host != "example.com" {
		t.Fatalf("expected example.com, got %q", host)
	}

	s = Story{URL: "http://news.example.org:8080/a?b=c"}
	host, err = s.HostName()
	if err != nil {
		t.Fatalf("host name with port: %v", err)
	}
	if host != "news.example.org" {
		t.Fatalf("expected news.example.org, got %q", host)
	}
}

func TestHostNameMalformed(t *testing.T) {
	for _, raw := range []string{"not a url", "/relative/path", "", "http://[::1"} {
		host, err := Story{URL: raw}.HostName()
		if err == nil {
			t.Fatalf("expected error for %q, got host %q", raw, host)
		}
		if !errors.Is(err, ErrInvalidURL) {
			t.Fatalf("expected ErrInvalidURL for %q, got %v", raw, err)
		}
		if host != "" {
			t.Fatalf("expected empty host for %q, got %q", raw, host)
		}
	}
}

func TestRemoveID(t *testing.T) {
	stories := []Story{{ID: "a"}, {ID: "b"}, {ID: "a"}, {ID: "c"}}
	out, removed := RemoveID(stories, "a")
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	if len(out) != 2 || out[0].ID != "b" || out[1].ID != "c" {
		t.Fatalf("unexpected result: %+v", out)
	}
	if len(stories) != 4 || stories[0].ID != "a" {
		t.Fatalf("input slice was modified: %+v", stories)
	}

	out, removed = RemoveID(stories, "missing")
	if removed != 0 || len(out) != len(stories) {
		t.Fatalf("expected no-op, got %d removed, len %d", removed, len(out))
	}
}

func TestDedupe(t *testing.T) {
	out := Dedupe([]Story{{ID: "a", Title: "first"}, {ID: "b"}, {ID: "a", Title: "second"}})
	if len(out) != 2 {
		t.Fatalf("expected 2 stories, got %d", len(out))
	}
	if out[0].Title != "first" {
		t.Fatalf("expected first occurrence kept, got %q", out[0].Title)
	}
	if IndexOf(out, "b") != 1 || !ContainsID(out, "a") || ContainsID(out, "z") {
		t.Fatalf("unexpected membership for %+v", out)
	}
}
