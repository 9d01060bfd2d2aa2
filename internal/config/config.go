// Package config reads service settings from the environment, optionally
// seeded from .env files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env"
	"github.com/joho/godotenv"

	"github.com/johnrirwin/localtv/internal/models"
	"github.com/johnrirwin/localtv/internal/sources"
)

type Config struct {
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`
	CORSOrigins string `env:"CORS_ORIGINS" envDefault:"*"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	SiteID          int64    `env:"SITE_ID" envDefault:"1"`
	SiteName        string   `env:"SITE_NAME" envDefault:"LocalTV"`
	SiteDomain      string   `env:"SITE_DOMAIN" envDefault:"localhost"`
	AdminUserIDs    []string `env:"ADMIN_USER_IDS" envSeparator:","`
	ThumbnailPrefix string   `env:"THUMBNAIL_PREFIX" envDefault:"localtv/video_thumbs"`
	TagMaxLength    int      `env:"TAG_MAX_LENGTH" envDefault:"25"`

	// Empty DatabaseURL keeps everything in memory.
	DatabaseURL string `env:"DATABASE_URL"`

	StorageDir     string `env:"STORAGE_DIR" envDefault:"./data/media"`
	MinIOEndpoint  string `env:"MINIO_ENDPOINT"`
	MinIOAccessKey string `env:"MINIO_ACCESS_KEY"`
	MinIOSecretKey string `env:"MINIO_SECRET_KEY"`
	MinIOBucket    string `env:"MINIO_BUCKET" envDefault:"localtv"`
	MinIOUseSSL    bool   `env:"MINIO_USE_SSL" envDefault:"false"`

	RedisURL string `env:"REDIS_URL"`

	RabbitMQURL          string `env:"RABBITMQ_URL"`
	ThumbnailQueue       string `env:"THUMBNAIL_QUEUE" envDefault:"localtv.thumbnails"`
	DeferThumbnails      bool   `env:"DEFER_THUMBNAILS" envDefault:"true"`
	ThumbnailWorkers     int    `env:"THUMBNAIL_WORKERS" envDefault:"2"`
	ThumbnailMaxAttempts int    `env:"THUMBNAIL_MAX_ATTEMPTS" envDefault:"5"`

	ModerationEnabled       bool    `env:"MODERATION_ENABLED" envDefault:"false"`
	AWSRegion               string  `env:"AWS_REGION" envDefault:"us-east-1"`
	ModerationMinConfidence float32 `env:"MODERATION_MIN_CONFIDENCE" envDefault:"80"`

	JWTSecret string `env:"JWT_SECRET"`
	JWTIssuer string `env:"JWT_ISSUER" envDefault:"localtv"`

	SourcesFile     string        `env:"SOURCES_FILE"`
	UpdateInterval  time.Duration `env:"UPDATE_INTERVAL" envDefault:"1h"`
	FetchTimeout    time.Duration `env:"FETCH_TIMEOUT" envDefault:"30s"`
	HostInterval    time.Duration `env:"HOST_INTERVAL" envDefault:"1s"`
	UserAgent       string        `env:"USER_AGENT" envDefault:"LocalTV/1.0"`
	LiveSearchTTL   time.Duration `env:"LIVE_SEARCH_TTL" envDefault:"10m"`
	SearchProviders string        `env:"SEARCH_PROVIDERS"`
}

// Load reads the given .env files, or ./.env when none are named, then
// parses the environment. Variables already set win over file values.
func Load(files ...string) (*Config, error) {
	explicit := len(files) > 0
	if !explicit {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if !explicit && errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.SiteID <= 0 {
		return fmt.Errorf("SITE_ID must be positive")
	}
	if c.ThumbnailWorkers <= 0 {
		return fmt.Errorf("THUMBNAIL_WORKERS must be positive")
	}
	if c.MinIOEndpoint != "" && (c.MinIOAccessKey == "" || c.MinIOSecretKey == "") {
		return fmt.Errorf("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required with MINIO_ENDPOINT")
	}
	if _, err := c.Providers(); err != nil {
		return err
	}
	return nil
}

// SiteSettings builds the settings handed to the pipelines.
func (c *Config) SiteSettings() models.SiteSettings {
	s := models.DefaultSiteSettings(models.Site{ID: c.SiteID, Name: c.SiteName, Domain: c.SiteDomain})
	s.ThumbnailPrefix = c.ThumbnailPrefix
	if c.TagMaxLength > 0 {
		s.TagMaxLength = c.TagMaxLength
	}
	for _, id := range c.AdminUserIDs {
		if id = strings.TrimSpace(id); id != "" {
			s.AdminUserIDs = append(s.AdminUserIDs, id)
		}
	}
	return s
}

// HTTP returns the settings of the outbound fetchers.
func (c *Config) HTTP() sources.Config {
	hc := sources.DefaultConfig()
	if c.UserAgent != "" {
		hc.UserAgent = c.UserAgent
	}
	if c.FetchTimeout > 0 {
		hc.Timeout = c.FetchTimeout
	}
	return hc
}

// ProviderSpec is one search provider: a name and a feed URL template
// containing {query}.
type ProviderSpec struct {
	Name        string
	URLTemplate string
}

// Providers parses SEARCH_PROVIDERS, a ";"-separated list of
// name=template pairs.
func (c *Config) Providers() ([]ProviderSpec, error) {
	var specs []ProviderSpec
	for _, part := range strings.Split(c.SearchProviders, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, tmpl, ok := strings.Cut(part, "=")
		name, tmpl = strings.TrimSpace(name), strings.TrimSpace(tmpl)
		if !ok || name == "" || !strings.Contains(tmpl, "{query}") {
			return nil, fmt.Errorf("invalid SEARCH_PROVIDERS entry %q: want name=url-with-{query}", part)
		}
		specs = append(specs, ProviderSpec{Name: name, URLTemplate: tmpl})
	}
	return specs, nil
}
