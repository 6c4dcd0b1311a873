package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/alphabot-ai/hackorsnooze/internal/client"
	"github.com/alphabot-ai/hackorsnooze/internal/config"
	"github.com/alphabot-ai/hackorsnooze/internal/logging"
	"github.com/alphabot-ai/hackorsnooze/internal/rate"
	"github.com/alphabot-ai/hackorsnooze/internal/session"
	"github.com/alphabot-ai/hackorsnooze/internal/store/sqlite"
)

var version = "v0.1.0"

// skipSession marks commands that run without the API client and the store.
const skipSession = "skip-session"

type app struct {
	v          *viper.Viper
	cfg        config.Config
	configFile string
	output     string
	debug      bool

	store *sqlite.Store
	api   *client.Client
	sess  *session.Session
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{v: config.New()}
	root := a.rootCommand()
	err := root.ExecuteContext(ctx)
	a.close()
	if err != nil {
		printError(root.ErrOrStderr(), err)
		os.Exit(1)
	}
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "snooze",
		Short: "Read and share stories on Hack-or-Snooze",
		Long: `snooze is a command-line client for the Hack-or-Snooze story feed.

Browse the newest stories, post links, keep favorites and manage your
account. Logins are remembered in a local database, and the last pages
you read stay available offline.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.listStories(cmd, 1, false)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (default $HOME/.snooze/snooze.yaml)")
	flags.String("api", "", "Hack-or-Snooze API base URL")
	flags.String("db", "", "path of the local database")
	flags.StringVarP(&a.output, "output", "o", "text", "output format: text, json or yaml")
	flags.BoolVar(&a.debug, "debug", false, "log API requests to stderr")
	_ = a.v.BindPFlag("api.base_url", flags.Lookup("api"))
	_ = a.v.BindPFlag("db.path", flags.Lookup("db"))

	root.AddCommand(
		a.signupCommand(),
		a.loginCommand(),
		a.logoutCommand(),
		a.whoamiCommand(),
		a.accountsCommand(),
		a.useCommand(),
		a.storiesCommand(),
		a.storyCommand(),
		a.submitCommand(),
		a.deleteCommand(),
		a.favoriteCommand(),
		a.unfavoriteCommand(),
		a.favoritesCommand(),
		a.mineCommand(),
		a.profileCommand(),
		a.mockCommand(),
		versionCommand(),
	)
	return root
}

// setup loads configuration, configures logging and, unless the command opts
// out, opens the store and builds the session.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(a.v, a.configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if a.debug {
		cfg.Log.Level = "debug"
	}
	if err := logging.Setup(cfg.Log.Level, cfg.Log.Format); err != nil {
		return err
	}
	switch a.output {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("unknown output format %q", a.output)
	}
	a.cfg = cfg

	if cmd.Annotations[skipSession] != "" {
		return nil
	}
	return a.open()
}

func (a *app) open() error {
	if err := ensureDir(a.cfg.DBPath); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	st, err := sqlite.Open(a.cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	a.store = st

	limits := client.Limits{
		StoryPerMinute:    a.cfg.RateLimits.StoryPerMinute,
		FavoritePerMinute: a.cfg.RateLimits.FavoritePerMinute,
		ProfilePerMinute:  a.cfg.RateLimits.ProfilePerMinute,
	}
	a.api = client.New(a.cfg.API.BaseURL,
		client.WithTimeout(a.cfg.API.Timeout),
		client.WithUserAgent(a.cfg.API.UserAgent),
		client.WithLimiter(rate.NewMemory(), limits),
	)
	a.sess = session.New(a.api, a.store,
		session.WithBaseURL(a.api.BaseURL),
		session.WithPageSize(a.cfg.API.PageSize),
	)
	logrus.WithFields(logrus.Fields{"api": a.api.BaseURL, "db": a.cfg.DBPath}).Debug("session ready")
	return nil
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logrus.WithError(err).Warn("close database")
		}
	}
}

func ensureDir(dbPath string) error {
	if dbPath == "" || dbPath == ":memory:" || strings.HasPrefix(dbPath, "file:") {
		return nil
	}
	return os.MkdirAll(filepath.Dir(dbPath), 0o700)
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print the version",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipSession: "true"},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "snooze %s\n", version)
		},
	}
}

func printError(w io.Writer, err error) {
	colourError.Fprintf(w, "Error: %v\n", err)
	switch {
	case errors.Is(err, session.ErrNotLoggedIn):
		fmt.Fprintln(w, "\nRun: snooze login --username <name> --password <password>")
	case client.IsKind(err, client.KindUnauthorized):
		fmt.Fprintln(w, "\nYour login may have expired. Run: snooze login")
	case client.IsKind(err, client.KindTransport):
		fmt.Fprintln(w, "\nIs the API reachable? Check --api or api.base_url.")
	}
}
