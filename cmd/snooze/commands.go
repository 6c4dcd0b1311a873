package main

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alphabot-ai/hackorsnooze/internal/linkmeta"
	"github.com/alphabot-ai/hackorsnooze/internal/model"
	"github.com/alphabot-ai/hackorsnooze/internal/session"
	"github.com/alphabot-ai/hackorsnooze/internal/store"
	"github.com/alphabot-ai/hackorsnooze/internal/users"
)

// ============================================================================
// ACCOUNT COMMANDS
// ============================================================================

func (a *app) signupCommand() *cobra.Command {
	var username, password, name string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and log in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := a.sess.Signup(cmd.Context(), username, password, name)
			if err != nil {
				return err
			}
			successf(cmd.OutOrStdout(), "Signed up as '%s'", u.Username)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "username (required)")
	cmd.Flags().StringVar(&password, "password", "", "password (required)")
	cmd.Flags().StringVar(&name, "name", "", "display name (required)")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func (a *app) loginCommand() *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and remember the login",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := a.sess.Login(cmd.Context(), username, password)
			if err != nil {
				return err
			}
			successf(cmd.OutOrStdout(), "Logged in as '%s' (%s)", u.Username, u.DisplayName())
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "username (required)")
	cmd.Flags().StringVar(&password, "password", "", "password (required)")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func (a *app) logoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the current login",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.sess.Logout(cmd.Context()); err != nil {
				return err
			}
			successf(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func (a *app) whoamiCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "whoami",
		Aliases: []string{"status"},
		Short:   "Show the current user",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.sess.Resume(cmd.Context()) != session.Authenticated {
				fmt.Fprintln(cmd.OutOrStdout(), "Status: Not logged in")
				fmt.Fprintln(cmd.OutOrStdout(), "\nRun: snooze login --username <name> --password <password>")
				return nil
			}
			return printUser(cmd.OutOrStdout(), a.output, a.sess.CurrentUser(), a.api.BaseURL)
		},
	}
}

func (a *app) accountsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "List saved logins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			saved, err := a.store.ListCredentials(ctx)
			if err != nil {
				return err
			}
			var current string
			if creds, err := a.store.CurrentCredentials(ctx); err == nil {
				current = creds.Username
			} else if !errors.Is(err, store.ErrNotFound) {
				return err
			}

			type accountView struct {
				Username string `json:"username" yaml:"username"`
				Name     string `json:"name" yaml:"name"`
				API      string `json:"api" yaml:"api"`
				Current  bool   `json:"current" yaml:"current"`
			}
			views := make([]accountView, 0, len(saved))
			for _, c := range saved {
				views = append(views, accountView{c.Username, c.Name, c.BaseURL, c.Username == current})
			}
			w := cmd.OutOrStdout()
			if ok, err := writeStructured(w, a.output, views); ok {
				return err
			}

			if len(views) == 0 {
				fmt.Fprintln(w, "No saved logins")
				fmt.Fprintln(w, "\nRun: snooze login --username <name> --password <password>")
				return nil
			}
			fmt.Fprintln(w, "Saved logins:")
			for _, v := range views {
				if v.Current {
					fmt.Fprintf(w, "  * %s (current)\n", v.Username)
				} else {
					fmt.Fprintf(w, "    %s\n", v.Username)
				}
			}
			fmt.Fprintln(w, "\nSwitch with: snooze use <username>")
			return nil
		},
	}
}

func (a *app) useCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "use <username>",
		Aliases: []string{"switch"},
		Short:   "Switch to another saved login",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := a.sess.Switch(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			successf(cmd.OutOrStdout(), "Switched to '%s'", u.Username)
			return nil
		},
	}
}

func (a *app) profileCommand() *cobra.Command {
	var name, password string
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or change your name and password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a.sess.Resume(ctx)
			if name == "" && password == "" {
				u := a.sess.CurrentUser()
				if u == nil {
					return session.ErrNotLoggedIn
				}
				return printUser(cmd.OutOrStdout(), a.output, u, a.api.BaseURL)
			}

			res, err := a.sess.UpdateProfile(ctx, users.ProfileUpdate{Name: name, Password: password})
			if err != nil {
				return err
			}
			if res.NameErr != nil {
				colourError.Fprintf(cmd.ErrOrStderr(), "name: %v\n", res.NameErr)
			}
			if res.PasswordErr != nil {
				colourError.Fprintf(cmd.ErrOrStderr(), "password: %v\n", res.PasswordErr)
			}
			if !res.NameChanged && !res.PasswordChanged {
				return errors.New(res.Message())
			}
			successf(cmd.OutOrStdout(), "%s", res.Message())
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new display name")
	cmd.Flags().StringVar(&password, "password", "", "new password")
	return cmd
}

// ============================================================================
// STORY COMMANDS
// ============================================================================

func (a *app) storiesCommand() *cobra.Command {
	var pages int
	var offline bool
	cmd := &cobra.Command{
		Use:     "stories",
		Aliases: []string{"list", "read"},
		Short:   "List the newest stories",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.listStories(cmd, pages, offline)
		},
	}
	cmd.Flags().IntVarP(&pages, "pages", "p", 1, "number of pages to fetch")
	cmd.Flags().BoolVar(&offline, "offline", false, "read the local cache instead of the API")
	return cmd
}

func (a *app) listStories(cmd *cobra.Command, pages int, offline bool) error {
	ctx := cmd.Context()
	if pages < 1 {
		pages = 1
	}

	if offline {
		list, err := a.sess.LoadCached(ctx, pages*a.cfg.API.PageSize)
		if err != nil {
			return err
		}
		return printStories(cmd.OutOrStdout(), a.output, list, nil, "No cached stories yet. Run 'snooze stories' while online.")
	}

	if err := a.sess.Start(ctx); err != nil {
		return err
	}
	for i := 1; i < pages && !a.sess.FeedDone(); i++ {
		if _, err := a.sess.LoadMore(ctx); err != nil {
			return err
		}
	}
	return printStories(cmd.OutOrStdout(), a.output, a.sess.Feed(), a.sess.CurrentUser(), "No stories yet!")
}

func (a *app) storyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "story <id>",
		Short: "Show a single story",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a.sess.Resume(ctx)
			s, err := a.sess.Story(ctx, args[0])
			if err != nil {
				return err
			}
			return printStory(cmd.OutOrStdout(), a.output, s, a.sess.CurrentUser())
		},
	}
}

func (a *app) submitCommand() *cobra.Command {
	var in model.NewStory
	cmd := &cobra.Command{
		Use:     "submit",
		Aliases: []string{"post"},
		Short:   "Post a new story",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			in.URL = strings.TrimSpace(in.URL)
			if _, err := (model.Story{URL: in.URL}).HostName(); err != nil {
				return err
			}
			if a.sess.Resume(ctx) != session.Authenticated {
				return session.ErrNotLoggedIn
			}
			if strings.TrimSpace(in.Title) == "" {
				fetcher := linkmeta.NewFetcher(&http.Client{Timeout: a.cfg.API.Timeout}, a.cfg.API.UserAgent)
				title, err := fetcher.Title(ctx, in.URL)
				if err != nil {
					return fmt.Errorf("no --title given and the page title could not be read: %w", err)
				}
				colourInfo.Fprintf(cmd.ErrOrStderr(), "Using page title %q\n", title)
				in.Title = title
			}

			s, err := a.sess.SubmitStory(ctx, in)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if ok, err := writeStructured(w, a.output, newStoryView(s, a.sess.CurrentUser())); ok {
				return err
			}
			successf(w, "Posted: %s", s.Title)
			fmt.Fprintf(w, "  ID: %s\n", s.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.Title, "title", "", "story title (default: the page's own title)")
	cmd.Flags().StringVar(&in.Author, "author", "", "author of the linked piece (required)")
	cmd.Flags().StringVar(&in.URL, "url", "", "link URL (required)")
	_ = cmd.MarkFlagRequired("author")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func (a *app) deleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete one of your stories",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a.sess.Resume(ctx)
			if err := a.sess.DeleteStory(ctx, args[0]); err != nil {
				return err
			}
			successf(cmd.OutOrStdout(), "Deleted story %s", args[0])
			return nil
		},
	}
}

func (a *app) favoriteCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "favorite <id>",
		Aliases: []string{"fav"},
		Short:   "Add a story to your favorites",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a.sess.Resume(ctx)
			s, err := a.sess.AddFavorite(ctx, args[0])
			if err != nil {
				return err
			}
			title := s.Title
			if title == "" {
				title = s.ID
			}
			successf(cmd.OutOrStdout(), "Favorited: %s", title)
			return nil
		},
	}
}

func (a *app) unfavoriteCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "unfavorite <id>",
		Aliases: []string{"unfav"},
		Short:   "Remove a story from your favorites",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a.sess.Resume(ctx)
			if err := a.sess.RemoveFavorite(ctx, args[0]); err != nil {
				return err
			}
			successf(cmd.OutOrStdout(), "Removed %s from favorites", args[0])
			return nil
		},
	}
}

func (a *app) favoritesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "favorites",
		Short: "List your favorite stories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.sess.Resume(cmd.Context()) != session.Authenticated {
				return session.ErrNotLoggedIn
			}
			return printStories(cmd.OutOrStdout(), a.output, a.sess.Favorites(), a.sess.CurrentUser(), "No favorites added!")
		},
	}
}

func (a *app) mineCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mine",
		Short: "List the stories you posted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.sess.Resume(cmd.Context()) != session.Authenticated {
				return session.ErrNotLoggedIn
			}
			return printStories(cmd.OutOrStdout(), a.output, a.sess.OwnStories(), a.sess.CurrentUser(), "No stories added by user yet!")
		},
	}
}
