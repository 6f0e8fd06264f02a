package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// TemplatesConfig selects where event templates come from. The first
// non-empty of DB, URL and Path wins; with none set the built-in data set
// is used.
type TemplatesConfig struct {
	// Path is a local YAML/JSON template file.
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
	// URL is a remote template document fetched with ETag caching.
	URL string `yaml:"url,omitempty" json:"url,omitempty"`
	// DB is a SQLite database filled by `almanac import`.
	DB string `yaml:"db,omitempty" json:"db,omitempty"`
}

// BasicAuthConfig protects administrative endpoints. PasswordHash is an
// Argon2id hash as printed by `almanac hash-password`.
type BasicAuthConfig struct {
	Username     string `yaml:"username" json:"username"`
	PasswordHash string `yaml:"password_hash" json:"-"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// DefaultCountry is used when a request names no country.
	DefaultCountry string `yaml:"default_country" json:"default_country"`

	Templates TemplatesConfig `yaml:"templates" json:"templates"`

	// CacheDir holds the on-disk cache of remote template documents.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// RefreshCron is a cron-style schedule (e.g. "0 * * * *") for
	// reloading templates. Empty disables periodic reloads.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// BasicAuth, if set, guards POST /api/reload.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultListen   = "127.0.0.1:8080"
	defaultLogLevel = "info"
	defaultCountry  = "JM"
	defaultCacheDir = "./var/template-cache"
	defaultRefresh  = "0 * * * *"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:         defaultListen,
		LogLevel:       defaultLogLevel,
		DefaultCountry: defaultCountry,
		CacheDir:       defaultCacheDir,
		RefreshCron:    defaultRefresh,
	}
}

// Normalize fills in missing values so partially filled files behave.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
		c.LogLevel = strings.ToLower(c.LogLevel)
	default:
		c.LogLevel = defaultLogLevel
	}
	c.DefaultCountry = strings.ToUpper(strings.TrimSpace(c.DefaultCountry))
	if c.DefaultCountry == "" {
		c.DefaultCountry = defaultCountry
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}
	c.RefreshCron = strings.TrimSpace(c.RefreshCron)
	if c.BasicAuth != nil && c.BasicAuth.Username == "" && c.BasicAuth.PasswordHash == "" {
		c.BasicAuth = nil
	}
}

// AuthEnabled reports whether Basic Auth credentials are configured.
func (c *Config) AuthEnabled() bool {
	return c.BasicAuth != nil && c.BasicAuth.Username != "" && c.BasicAuth.PasswordHash != ""
}

// Load loads configuration from the given YAML path and applies ALMANAC_*
// environment overrides.
//
// Behavior:
//   - If the file does not exist a default config is written with 0600
//     permissions and returned.
//   - If the file exists it is decoded and normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			cfg.ApplyEnv()
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	cfg.Normalize()

	return &cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given .env files into the
// process environment without overriding variables already set. Missing
// files are ignored.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

// ApplyEnv overrides fields from ALMANAC_* environment variables.
func (c *Config) ApplyEnv() {
	c.Listen = getEnvOrDefault("ALMANAC_LISTEN", c.Listen)
	c.LogLevel = getEnvOrDefault("ALMANAC_LOG_LEVEL", c.LogLevel)
	c.DefaultCountry = getEnvOrDefault("ALMANAC_DEFAULT_COUNTRY", c.DefaultCountry)
	c.Templates.Path = getEnvOrDefault("ALMANAC_TEMPLATES_PATH", c.Templates.Path)
	c.Templates.URL = getEnvOrDefault("ALMANAC_TEMPLATES_URL", c.Templates.URL)
	c.Templates.DB = getEnvOrDefault("ALMANAC_TEMPLATES_DB", c.Templates.DB)
	c.CacheDir = getEnvOrDefault("ALMANAC_CACHE_DIR", c.CacheDir)
	c.RefreshCron = getEnvOrDefault("ALMANAC_REFRESH", c.RefreshCron)

	user := os.Getenv("ALMANAC_AUTH_USERNAME")
	hash := os.Getenv("ALMANAC_AUTH_PASSWORD_HASH")
	if user != "" || hash != "" {
		if c.BasicAuth == nil {
			c.BasicAuth = &BasicAuthConfig{}
		}
		c.BasicAuth.Username = getEnvOrDefault("ALMANAC_AUTH_USERNAME", c.BasicAuth.Username)
		c.BasicAuth.PasswordHash = getEnvOrDefault("ALMANAC_AUTH_PASSWORD_HASH", c.BasicAuth.PasswordHash)
	}
}

func getEnvOrDefault(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".almanac-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
