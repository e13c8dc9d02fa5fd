package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
	"gopkg.in/yaml.v3"

	"slippi-tracker/internal/domain"
)

const DefaultRankAPIURL = "https://gql-gateway-dot-slippi.uc.r.appspot.com/graphql"

// DefaultAllowedOrigins admits pages served from the local machine only.
const DefaultAllowedOrigins = "http://localhost:*,http://127.0.0.1:*,http://[::1]:*"

type Config struct {
	LogLevel      string
	DataDir       string
	DBPath        string
	HTTPAddr      string
	ReplayDecoder []string
	RankAPIURL    string
	OptionsFile   string

	// AllowedOrigins lists the browser origins the HTTP surface answers.
	AllowedOrigins []string

	// Options seeds the tracker on start.
	Options domain.TrackerOptions
}

// MetaPath is the meta document beside the database.
func (c *Config) MetaPath(name string) string {
	return filepath.Join(c.DataDir, name)
}

func Load(logger zerolog.Logger) (*Config, error) {
	envFile := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil {
		logger.Debug().Str("file", envFile).Msg(".env file not found, using environment variables or defaults")
	}

	cfg := &Config{
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DataDir:        getEnv("DATA_DIR", "."),
		HTTPAddr:       getEnv("HTTP_ADDR", "127.0.0.1:7420"),
		ReplayDecoder:  strings.Fields(getEnv("REPLAY_DECODER", "slp-decode")),
		RankAPIURL:     getEnv("RANK_API_URL", DefaultRankAPIURL),
		OptionsFile:    getEnv("OPTIONS_FILE", ""),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", DefaultAllowedOrigins)),
		Options:        domain.DefaultTrackerOptions(),
	}
	cfg.DBPath = getEnv("DB_PATH", filepath.Join(cfg.DataDir, "slippi-ops.db"))
	cfg.Options.PathToDB = cfg.DBPath

	if cfg.OptionsFile != "" {
		opts, err := LoadOptions(cfg.OptionsFile, cfg.Options)
		if err != nil {
			return nil, err
		}
		cfg.Options = opts
	}

	if len(cfg.ReplayDecoder) == 0 {
		return nil, errors.New("REPLAY_DECODER must name a command")
	}

	logger.Info().
		Str("data_dir", cfg.DataDir).
		Str("db_path", cfg.Options.PathToDB).
		Str("http_addr", cfg.HTTPAddr).
		Strs("replay_decoder", cfg.ReplayDecoder).
		Str("options_file", cfg.OptionsFile).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Str("log_level", cfg.LogLevel).
		Msg("configuration loaded")

	return cfg, nil
}

// LoadOptions reads a YAML options document over defaults. Keys missing from
// the file keep their default value.
func LoadOptions(path string, defaults domain.TrackerOptions) (domain.TrackerOptions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return defaults, fmt.Errorf("failed to read options file: %w", err)
	}
	opts := defaults
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return defaults, fmt.Errorf("failed to parse options file: %w", err)
	}
	if opts.CurrentCodes == nil {
		opts.CurrentCodes = []string{}
	}
	return opts, nil
}

// SaveOptions writes opts as YAML.
func SaveOptions(path string, opts domain.TrackerOptions) error {
	data, err := yaml.Marshal(opts)
	if err != nil {
		return fmt.Errorf("failed to encode options: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

var Module = fx.Provide(Load)
