package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config models market.yml.
type Config struct {
	Server struct {
		Addr        string   `yaml:"addr" json:"addr"`
		BasePath    string   `yaml:"base_path" json:"base_path"`
		CORSOrigins []string `yaml:"cors_origins" json:"cors_origins"`
	} `yaml:"server" json:"server"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret" json:"-"`
		TokenTTL  string `yaml:"token_ttl" json:"token_ttl"`
	} `yaml:"auth" json:"auth"`
	Database struct {
		Path string `yaml:"path" json:"path"`
	} `yaml:"database" json:"database"`
	Storage struct {
		UploadDir         string   `yaml:"upload_dir" json:"upload_dir"`
		MaxUploadSize     string   `yaml:"max_upload_size" json:"max_upload_size"`
		AllowedExtensions []string `yaml:"allowed_extensions" json:"allowed_extensions"`
		AllowedMIMETypes  []string `yaml:"allowed_mime_types" json:"allowed_mime_types"`
	} `yaml:"storage" json:"storage"`
	Log struct {
		Level  string `yaml:"level" json:"level"`
		Format string `yaml:"format" json:"format"`
	} `yaml:"log" json:"log"`
}

// FileName is the config file looked up in the workspace.
const FileName = "market.yml"

// Load reads and validates config from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with pm config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if _, err := c.TokenTTL(); err != nil {
		return err
	}
	if _, err := c.MaxUploadBytes(); err != nil {
		return err
	}
	if c.Storage.UploadDir == "" {
		return fmt.Errorf("config.storage.upload_dir is required")
	}
	if len(c.Storage.AllowedMIMETypes) == 0 {
		return fmt.Errorf("config.storage.allowed_mime_types is required to check upload content")
	}
	for _, ext := range c.Storage.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("allowed extension %q must start with a dot", ext)
		}
	}
	if c.Database.Path == "" {
		return fmt.Errorf("config.database.path is required")
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	switch c.Log.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("config.log.format %q is not one of json, console", c.Log.Format)
	}
	return nil
}

// TokenTTL parses auth.token_ttl.
func (c *Config) TokenTTL() (time.Duration, error) {
	if c.Auth.TokenTTL == "" {
		return 7 * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(c.Auth.TokenTTL)
	if err != nil {
		return 0, fmt.Errorf("config.auth.token_ttl: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config.auth.token_ttl must be positive")
	}
	return d, nil
}

// MaxUploadBytes parses storage.max_upload_size ("50MiB", "10 MB", ...).
func (c *Config) MaxUploadBytes() (int64, error) {
	if c.Storage.MaxUploadSize == "" {
		return 50 << 20, nil
	}
	n, err := humanize.ParseBytes(c.Storage.MaxUploadSize)
	if err != nil {
		return 0, fmt.Errorf("config.storage.max_upload_size: %w", err)
	}
	if n == 0 {
		return 0, fmt.Errorf("config.storage.max_upload_size must be positive")
	}
	return int64(n), nil
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config template: %v", err))
	}
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Missing keys keep their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /api
  cors_origins: ["*"]

auth:
  # jwt_secret is normally supplied through PM_JWT_SECRET
  jwt_secret: ""
  token_ttl: 168h

database:
  path: .projectmarket/market.db

storage:
  upload_dir: .projectmarket/uploads
  max_upload_size: 50MiB
  allowed_extensions: [.zip]
  allowed_mime_types: [application/zip, application/x-zip-compressed]

log:
  level: info
  format: json
`
