package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/alphabot-ai/hackorsnooze/internal/client"
	"github.com/alphabot-ai/hackorsnooze/internal/model"
)

var accounts = []struct {
	username string
	name     string
}{
	{"ada", "Ada Lovelace"},
	{"grace", "Grace Hopper"},
	{"linus", "Linus Torvalds"},
	{"margaret", "Margaret Hamilton"},
	{"ken", "Ken Thompson"},
}

var seedStories = []model.NewStory{
	{Title: "Go 1.24 is released", Author: "The Go Team", URL: "https://go.dev/blog/go1.24"},
	{Title: "Notes on the Analytical Engine", Author: "Ada Lovelace", URL: "https://example.com/analytical-engine"},
	{Title: "The first actual case of a bug being found", Author: "Grace Hopper", URL: "https://example.com/first-bug"},
	{Title: "Linux 0.01 release notes", Author: "Linus Torvalds", URL: "https://example.com/linux-001"},
	{Title: "Apollo guidance computer source code", Author: "Margaret Hamilton", URL: "https://github.com/chrislgarry/Apollo-11"},
	{Title: "Reflections on Trusting Trust", Author: "Ken Thompson", URL: "https://example.com/trusting-trust"},
	{Title: "A plain text file is a good file", Author: "Anonymous", URL: "https://example.com/plain-text"},
	{Title: "Why SQLite is the most deployed database", Author: "D. Richard Hipp", URL: "https://sqlite.org/mostdeployed.html"},
	{Title: "What color is your function?", Author: "Bob Nystrom", URL: "https://example.com/function-color"},
	{Title: "Falsehoods programmers believe about time", Author: "Noah Sussman", URL: "https://example.com/time-falsehoods"},
}

const password = "snooze-seed"

type seeded struct {
	users     int
	stories   int
	favorites int
}

func main() {
	baseURL := flag.String("url", "http://127.0.0.1:8089", "Hack-or-Snooze API URL")
	flag.Parse()

	logrus.Infof("seeding %s", *baseURL)
	res, err := run(context.Background(), client.New(*baseURL))
	if err != nil {
		logrus.WithError(err).Error("seed failed")
		os.Exit(1)
	}

	fmt.Println("\n=== Seed Complete ===")
	fmt.Printf("Users:     %d\n", res.users)
	fmt.Printf("Stories:   %d\n", res.stories)
	fmt.Printf("Favorites: %d\n", res.favorites)
	fmt.Printf("Password:  %s\n", password)
	fmt.Println("\nTry: snooze --api", *baseURL, "login --username ada --password", password)
}

func run(ctx context.Context, c *client.Client) (seeded, error) {
	var res seeded

	// Sign every account up, falling back to login when it already exists.
	tokens := make([]string, 0, len(accounts))
	names := make([]string, 0, len(accounts))
	for _, acct := range accounts {
		auth, err := c.Signup(ctx, acct.username, password, acct.name)
		if client.IsKind(err, client.KindConflict) {
			auth, err = c.Login(ctx, acct.username, password)
		}
		if err != nil {
			return res, fmt.Errorf("account %s: %w", acct.username, err)
		}
		logrus.WithField("username", acct.username).Info("✓ account ready")
		tokens = append(tokens, auth.Token)
		names = append(names, acct.username)
		res.users++
	}

	var storyIDs []string
	for _, s := range seedStories {
		i := rand.Intn(len(tokens))
		story, err := c.CreateStory(ctx, tokens[i], s)
		if err != nil {
			logrus.WithError(err).WithField("title", s.Title).Warn("✗ failed to post story")
			continue
		}
		storyIDs = append(storyIDs, story.ID)
		res.stories++
		logrus.WithFields(logrus.Fields{"id": story.ID, "by": names[i]}).Infof("✓ posted %q", s.Title)

		// Spread out created_at times
		time.Sleep(20 * time.Millisecond)
	}
	if len(storyIDs) == 0 {
		return res, fmt.Errorf("no stories were posted")
	}

	for i, token := range tokens {
		picked := make(map[string]bool)
		for n := rand.Intn(3) + 1; n > 0; n-- {
			id := storyIDs[rand.Intn(len(storyIDs))]
			if picked[id] {
				continue
			}
			picked[id] = true
			if _, err := c.AddFavorite(ctx, token, names[i], id); err != nil {
				logrus.WithError(err).Warn("✗ failed to add favorite")
				continue
			}
			res.favorites++
		}
	}
	logrus.Infof("✓ added %d favorites", res.favorites)

	return res, nil
}
