package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/ZanzyTHEbar/rx-fraud-scorer/internal/errors"
	"github.com/ZanzyTHEbar/rx-fraud-scorer/internal/scoring"
)

// EnvPrefix namespaces every environment override, e.g. RXGUARD_SERVER_PORT.
const EnvPrefix = "RXGUARD_"

// DefaultConfigFile is read when CONFIG_FILE is unset. A missing file is not
// an error.
const DefaultConfigFile = "configs/config.yaml"

// Config is the full service configuration.
type Config struct {
	LogLevel string `koanf:"log_level"`

	Server    ServerConfig    `koanf:"server"`
	Data      DataConfig      `koanf:"data"`
	Model     ModelConfig     `koanf:"model"`
	Lexicon   LexiconConfig   `koanf:"lexicon"`
	History   HistoryConfig   `koanf:"history"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
	Auth      AuthConfig      `koanf:"auth"`
	Privacy   PrivacyConfig   `koanf:"privacy"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	RequestTimeout  time.Duration `koanf:"request_timeout"`
	AllowedOrigins  []string      `koanf:"allowed_origins"`
	EnableHSTS      bool          `koanf:"enable_hsts"`
}

// DataConfig locates the training dataset (.csv or .parquet).
type DataConfig struct {
	Path string `koanf:"path"`
}

type ModelConfig struct {
	Forest         scoring.ForestConfig     `koanf:"forest"`
	Classifier     scoring.ClassifierConfig `koanf:"classifier"`
	BackgroundSize int                      `koanf:"background_size"`
}

// LexiconConfig overrides the built-in risk term lists when non-empty.
type LexiconConfig struct {
	High     []string `koanf:"high"`
	Moderate []string `koanf:"moderate"`
}

type HistoryConfig struct {
	Backend       string `koanf:"backend"`
	Path          string `koanf:"path"`
	AppendRetries int    `koanf:"append_retries"`
}

type RateLimitConfig struct {
	Enabled       bool   `koanf:"enabled"`
	PerMinute     int    `koanf:"per_minute"`
	Burst         int    `koanf:"burst"`
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`
}

// AuthConfig holds the single stub account and the token settings.
type AuthConfig struct {
	Email     string        `koanf:"email"`
	Password  string        `koanf:"password"`
	JWTSecret string        `koanf:"jwt_secret"`
	TokenTTL  time.Duration `koanf:"token_ttl"`
}

// PrivacyConfig controls how patient ids and emails appear in logs.
type PrivacyConfig struct {
	PseudonymizeLogs bool   `koanf:"pseudonymize_logs"`
	PseudonymKey     string `koanf:"pseudonym_key"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Server: ServerConfig{
			Port:            8000,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RequestTimeout:  20 * time.Second,
			AllowedOrigins:  []string{"http://localhost:5173"},
		},
		Data: DataConfig{
			Path: "data/merged_Fullcover.csv",
		},
		Model: ModelConfig{
			Forest:         scoring.DefaultForestConfig(),
			Classifier:     scoring.DefaultClassifierConfig(),
			BackgroundSize: 100,
		},
		History: HistoryConfig{
			Backend:       "csv",
			Path:          "predictions.csv",
			AppendRetries: 3,
		},
		RateLimit: RateLimitConfig{
			Enabled:   true,
			PerMinute: 120,
			Burst:     20,
		},
		Auth: AuthConfig{
			Email:     "edwin@gmail.com",
			Password:  "password123",
			JWTSecret: "change-me-in-production",
			TokenTTL:  24 * time.Hour,
		},
		Privacy: PrivacyConfig{
			PseudonymizeLogs: true,
		},
	}
}

// sections are the top-level keys that take a nested env suffix.
var sections = []string{"server", "data", "model", "lexicon", "history", "ratelimit", "auth", "privacy"}

// envKey maps RXGUARD_SERVER_READ_TIMEOUT to server.read_timeout and
// RXGUARD_MODEL_FOREST_TREES to model.forest.trees.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	for _, section := range sections {
		if !strings.HasPrefix(key, section+"_") {
			continue
		}
		rest := strings.TrimPrefix(key, section+"_")
		if section == "model" {
			for _, sub := range []string{"forest", "classifier"} {
				if strings.HasPrefix(rest, sub+"_") {
					return "model." + sub + "." + strings.TrimPrefix(rest, sub+"_")
				}
			}
		}
		return section + "." + rest
	}
	return key
}

// Load layers defaults, the YAML file named by CONFIG_FILE (or
// configs/config.yaml) and RXGUARD_ environment variables. DATA_PATH, when
// set, wins over every other source for the dataset location.
func Load() (*Config, error) {
	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = DefaultConfigFile
	}
	return LoadFile(path)
}

// LoadFile is Load with an explicit config file path.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, errors.NewConfigurationError("loading defaults", err)
	}

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.NewConfigurationError(fmt.Sprintf("loading %s", path), err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, errors.NewConfigurationError("loading environment variables", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.NewConfigurationError("unmarshaling config", err)
	}

	if dataPath := os.Getenv("DATA_PATH"); dataPath != "" {
		cfg.Data.Path = dataPath
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	var problems []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Data.Path == "" {
		problems = append(problems, "data.path is required")
	}
	if c.Model.Forest.Trees <= 0 {
		problems = append(problems, "model.forest.trees must be positive")
	}
	if c.Model.Forest.MaxSamples <= 0 {
		problems = append(problems, "model.forest.max_samples must be positive")
	}
	if c.Model.Forest.Contamination <= 0 || c.Model.Forest.Contamination > 0.5 {
		problems = append(problems, "model.forest.contamination must be in (0, 0.5]")
	}
	if c.Model.Classifier.Epochs <= 0 || c.Model.Classifier.LearningRate <= 0 || c.Model.Classifier.C <= 0 {
		problems = append(problems, "model.classifier epochs, learning_rate and c must be positive")
	}
	if c.Model.BackgroundSize <= 0 {
		problems = append(problems, "model.background_size must be positive")
	}
	switch c.History.Backend {
	case "csv", "sqlite":
	default:
		problems = append(problems, fmt.Sprintf("history.backend %q must be csv or sqlite", c.History.Backend))
	}
	if c.History.Path == "" {
		problems = append(problems, "history.path is required")
	}
	if c.History.AppendRetries < 1 {
		problems = append(problems, "history.append_retries must be at least 1")
	}
	if c.RateLimit.Enabled && (c.RateLimit.PerMinute <= 0 || c.RateLimit.Burst <= 0) {
		problems = append(problems, "ratelimit.per_minute and ratelimit.burst must be positive")
	}
	if c.Auth.JWTSecret == "" {
		problems = append(problems, "auth.jwt_secret is required")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("log_level %q is not one of debug, info, warn, error", c.LogLevel))
	}

	if len(problems) > 0 {
		return errors.NewConfigurationError(strings.Join(problems, "; "), nil)
	}
	return nil
}

// RiskLexicon builds the risk lexicon, falling back to the built-in lists for
// any tier left empty.
func (c *Config) RiskLexicon() *scoring.Lexicon {
	high, moderate := c.Lexicon.High, c.Lexicon.Moderate
	if len(high) == 0 {
		high = scoring.DefaultHighRiskTerms
	}
	if len(moderate) == 0 {
		moderate = scoring.DefaultModerateRiskTerms
	}
	return scoring.NewLexicon(high, moderate)
}

// ScoringOptions converts the model settings into scoring.Options.
func (c *Config) ScoringOptions() scoring.Options {
	return scoring.Options{
		Lexicon:        c.RiskLexicon(),
		Forest:         c.Model.Forest,
		Classifier:     c.Model.Classifier,
		BackgroundSize: c.Model.BackgroundSize,
	}
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
