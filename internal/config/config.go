// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Server
	Host           string   `envconfig:"host" default:"0.0.0.0"`
	Port           string   `envconfig:"port" default:"8080"`
	Environment    string   `envconfig:"env" default:"development"`
	LogLevel       string   `envconfig:"log_level" default:"info"`
	AllowedOrigins []string `envconfig:"allowed_origins" default:"http://localhost:5173,http://localhost:3000"`

	// Storage backend: "mongo" or "memory"
	StoreBackend string `envconfig:"store_backend" default:"mongo"`

	// MongoDB
	MongoURI     string `envconfig:"mongo_uri" default:"mongodb://localhost:27017"`
	DatabaseName string `envconfig:"database_name" default:"comunitarr"`
	MongoTimeout int    `envconfig:"mongo_timeout" default:"10"` // seconds

	// JWT
	JWTSecret     string `envconfig:"jwt_secret" default:"change-me"`
	JWTExpiration int    `envconfig:"jwt_expiration" default:"24"` // hours

	// Rate limiting
	RateLimitEnabled  bool          `envconfig:"rate_limit_enabled" default:"true"`
	RateLimitRequests int           `envconfig:"rate_limit_requests" default:"120"`
	RateLimitDuration time.Duration `envconfig:"rate_limit_duration" default:"1m"`

	// Neighborhoods accepted as partition keys
	Neighborhoods []string `envconfig:"neighborhoods" default:"part-alta,eixample,serrallo,sant-pere-i-sant-pau,torreforta,bonavista,campclar,llevant"`

	// Local fallback outbox
	OutboxPath           string        `envconfig:"outbox_path" default:"./data/outbox.db"`
	OutboxReplayInterval time.Duration `envconfig:"outbox_replay_interval" default:"30s"`
	OutboxBatchSize      int           `envconfig:"outbox_batch_size" default:"100"`

	// Forum chat simulator
	ChatSim ChatSimConfig `envconfig:"chatsim"`

	// Generative replies
	GenAIKey   string `envconfig:"genai_key"`
	GenAIModel string `envconfig:"genai_model" default:"gemini-2.0-flash"`

	// Push notifications
	FCMKey      string `envconfig:"fcm_key"`
	FCMEndpoint string `envconfig:"fcm_endpoint" default:"https://fcm.googleapis.com/fcm/send"`
}

type ChatSimConfig struct {
	Enabled         bool          `envconfig:"enabled" default:"true"`
	MinDelay        time.Duration `envconfig:"min_delay" default:"2s"`
	MaxDelay        time.Duration `envconfig:"max_delay" default:"9s"`
	PerCharDelay    time.Duration `envconfig:"per_char_delay" default:"60ms"`
	MaxBurst        int           `envconfig:"max_burst" default:"3"`
	FollowUpChance  float64       `envconfig:"follow_up_chance" default:"0.45"`
	SignatureChance float64       `envconfig:"signature_chance" default:"0.25"`
	RecentWindow    int           `envconfig:"recent_window" default:"12"`
	GenerateTimeout time.Duration `envconfig:"generate_timeout" default:"4s"`
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Load reads .env (outside release mode) and then the COMUNITARR_* environment.
func Load() (*Config, error) {
	if os.Getenv("GIN_MODE") != "release" {
		// .env is optional
		_ = godotenv.Load()
	}

	cfg := &Config{}
	if err := envconfig.Process("comunitarr", cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	if cfg.ChatSim.MaxDelay < cfg.ChatSim.MinDelay {
		return nil, fmt.Errorf("chatsim max_delay (%s) is lower than min_delay (%s)", cfg.ChatSim.MaxDelay, cfg.ChatSim.MinDelay)
	}
	if cfg.StoreBackend != "mongo" && cfg.StoreBackend != "memory" {
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
	if cfg.RateLimitEnabled && (cfg.RateLimitRequests < 1 || cfg.RateLimitDuration <= 0) {
		return nil, fmt.Errorf("rate limit needs a positive request count and duration, got %d per %s", cfg.RateLimitRequests, cfg.RateLimitDuration)
	}
	if cfg.ChatSim.MaxBurst < 1 {
		cfg.ChatSim.MaxBurst = 1
	}

	return cfg, nil
}
