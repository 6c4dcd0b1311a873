package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "SNOOZE"

type Config struct {
	API        API
	DBPath     string
	Log        Log
	RateLimits RateLimits
	MockAddr   string
}

type API struct {
	BaseURL   string
	Timeout   time.Duration
	PageSize  int
	UserAgent string
}

type Log struct {
	Level  string
	Format string
}

type RateLimits struct {
	StoryPerMinute    int
	FavoritePerMinute int
	ProfilePerMinute  int
}

// Dir is where the config file and database live by default.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".snooze"
	}
	return filepath.Join(home, ".snooze")
}

// New returns a viper instance with defaults, the SNOOZE_ environment and the
// config search path wired up. Nothing is read yet; callers bind flags to it
// before calling Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigName("snooze")
	v.SetConfigType("yaml")
	v.AddConfigPath(Dir())
	v.AddConfigPath(".")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "https://hack-or-snooze-v3.herokuapp.com")
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("api.page_size", 25)
	v.SetDefault("api.user_agent", "hackorsnooze-cli/0.1")
	v.SetDefault("db.path", filepath.Join(Dir(), "snooze.db"))
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "text")
	v.SetDefault("rate.story_per_minute", 10)
	v.SetDefault("rate.favorite_per_minute", 60)
	v.SetDefault("rate.profile_per_minute", 10)
	v.SetDefault("mock.addr", "127.0.0.1:8089")
}

// Load preloads .env, reads the config file if there is one (configFile
// overrides the search path) and decodes everything into a Config.
func Load(v *viper.Viper, configFile string) (Config, error) {
	// A missing .env is normal.
	_ = godotenv.Load()

	if configFile != "" {
		v.SetConfigFile(configFile)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return Config{}, err
		}
	}

	return Config{
		API: API{
			BaseURL:   v.GetString("api.base_url"),
			Timeout:   v.GetDuration("api.timeout"),
			PageSize:  v.GetInt("api.page_size"),
			UserAgent: v.GetString("api.user_agent"),
		},
		DBPath: v.GetString("db.path"),
		Log: Log{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		RateLimits: RateLimits{
			StoryPerMinute:    v.GetInt("rate.story_per_minute"),
			FavoritePerMinute: v.GetInt("rate.favorite_per_minute"),
			ProfilePerMinute:  v.GetInt("rate.profile_per_minute"),
		},
		MockAddr: v.GetString("mock.addr"),
	}, nil
}
