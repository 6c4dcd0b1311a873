package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/alphabot-ai/hackorsnooze/internal/apitest"
	"github.com/alphabot-ai/hackorsnooze/internal/model"
)

const demoPassword = "demo"

var demoStories = []model.NewStory{
	{Title: "Welcome to the offline Hack-or-Snooze", Author: "snooze", URL: "https://github.com/alphabot-ai/hackorsnooze"},
	{Title: "How HTTP caching actually works", Author: "Jake Archibald", URL: "https://example.com/http-caching"},
	{Title: "SQLite as an application file format", Author: "D. Richard Hipp", URL: "https://sqlite.org/appfileformat.html"},
}

func (a *app) mockCommand() *cobra.Command {
	var addr string
	var seed bool
	cmd := &cobra.Command{
		Use:         "mock",
		Short:       "Serve an in-memory Hack-or-Snooze API for offline use",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipSession: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = a.cfg.MockAddr
			}
			srv := apitest.New()
			if seed {
				srv.SeedUser("demo", demoPassword, "Demo User")
				for _, s := range demoStories {
					srv.SeedStory("demo", s)
				}
			}
			return serve(cmd.Context(), addr, srv, func(addr string) {
				w := cmd.OutOrStdout()
				successf(w, "Mock API listening on http://%s", addr)
				if seed {
					fmt.Fprintf(w, "  Demo login: --username demo --password %s\n", demoPassword)
				}
				fmt.Fprintf(w, "  Try: snooze --api http://%s stories\n", addr)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default mock.addr)")
	cmd.Flags().BoolVar(&seed, "seed", false, "start with a demo user and a few stories")
	return cmd
}

// serve runs handler until ctx is cancelled, then shuts down gracefully.
func serve(ctx context.Context, addr string, handler http.Handler, ready func(addr string)) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("mock api: %w", err)
	}
	httpServer := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.WithField("addr", ln.Addr().String()).Info("mock api listening")
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	ready(ln.Addr().String())

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("mock api: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logrus.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
