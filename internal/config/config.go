// Package config manages indexsync configuration: the backend connection,
// the content type registry, custom mappings and runtime settings.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kilupskalvis/indexsync/internal/models"
	"github.com/pelletier/go-toml/v2"
)

const (
	ConfigFile   = "indexsync.toml"
	DataDir      = ".indexsync"
	DatabaseFile = "content.db"
	QueueFile    = "queue.db"
)

// Environment overrides.
const (
	EnvWeaviateURL = "INDEXSYNC_WEAVIATE_URL"
	EnvDisabled    = "INDEXSYNC_DISABLED"
)

// Config represents the indexsync configuration
type Config struct {
	WeaviateURL   string `toml:"weaviate_url"`
	ServerVersion string `toml:"server_version,omitempty"` // Detected Weaviate server version on init
	// Enabled switches all index writes on or off
	Enabled  bool                     `toml:"enabled"`
	Index    IndexConfig              `toml:"index"`
	Types    []models.TypeSpec        `toml:"types"`
	Mappings map[string]MappingConfig `toml:"mappings,omitempty"`
	Store    StoreConfig              `toml:"store"`
	Queue    QueueConfig              `toml:"queue"`
	Log      LogConfig                `toml:"log"`
	Schedule ScheduleConfig           `toml:"schedule"`
	Metrics  MetricsConfig            `toml:"metrics"`

	path string // path of the config file
}

// IndexConfig names the index and the settings it is created with.
type IndexConfig struct {
	Name         string `toml:"name"`
	Vectorizer   string `toml:"vectorizer,omitempty"`
	Description  string `toml:"description,omitempty"`
	Tokenization string `toml:"tokenization,omitempty"`
}

// MappingConfig is an explicit mapping definition for one type.
type MappingConfig struct {
	Properties map[string]PropertyConfig `toml:"properties"`
	Params     map[string]any            `toml:"params,omitempty"`
}

// PropertyConfig is the mapping of one field.
type PropertyConfig struct {
	Type   string `toml:"type"`
	Format string `toml:"format,omitempty"`
	Store  *bool  `toml:"store,omitempty"`
	Array  bool   `toml:"array,omitempty"`
}

type StoreConfig struct {
	Path string `toml:"path"`
}

type QueueConfig struct {
	Enabled  bool   `toml:"enabled"`
	Path     string `toml:"path"`
	Interval string `toml:"interval,omitempty"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ScheduleConfig struct {
	// Reindex is a cron spec for the full reindex run by serve
	Reindex string `toml:"reindex,omitempty"`
}

type MetricsConfig struct {
	Addr string `toml:"addr,omitempty"`
}

// Default returns the configuration used for keys missing from the file.
func Default() *Config {
	return &Config{
		WeaviateURL: "localhost:8080",
		Enabled:     true,
		Index:       IndexConfig{Name: "main", Vectorizer: "none"},
		Store:       StoreConfig{Path: filepath.Join(DataDir, DatabaseFile)},
		Queue:       QueueConfig{Path: filepath.Join(DataDir, QueueFile), Interval: "5s"},
		Log:         LogConfig{Level: "info", Format: "text"},
	}
}

// Load loads the configuration file at path, applying environment overrides
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.path = path
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if url := os.Getenv(EnvWeaviateURL); url != "" {
		c.WeaviateURL = url
	}
	switch strings.ToLower(os.Getenv(EnvDisabled)) {
	case "1", "true", "yes":
		c.Enabled = false
	}
}

// Validate checks the type registry and mapping definitions.
func (c *Config) Validate() error {
	if c.Index.Name == "" {
		return fmt.Errorf("index name is required")
	}
	seen := make(map[string]bool, len(c.Types))
	for _, t := range c.Types {
		if t.Name == "" {
			return fmt.Errorf("type without a name")
		}
		if strings.Contains(t.Name, models.IDSeparator) {
			return fmt.Errorf("type name %q must not contain %q", t.Name, models.IDSeparator)
		}
		if seen[t.Name] {
			return fmt.Errorf("type %q declared twice", t.Name)
		}
		seen[t.Name] = true
	}
	for name, m := range c.Mappings {
		for field, p := range m.Properties {
			switch p.Type {
			case models.TypeString, models.TypeInteger, models.TypeDouble, models.TypeFloat, models.TypeDate:
			default:
				return fmt.Errorf("mapping %s.%s: unknown type %q", name, field, p.Type)
			}
		}
	}
	if _, err := time.ParseDuration(c.Queue.Interval); c.Queue.Interval != "" && err != nil {
		return fmt.Errorf("queue interval: %w", err)
	}
	return nil
}

// Save saves the configuration to disk
func (c *Config) Save() error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(c.path, data, 0644)
}

// Path returns the path of the config file
func (c *Config) Path() string {
	return c.path
}

// resolve makes p relative to the config file's directory.
func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) || c.path == "" {
		return p
	}
	return filepath.Join(filepath.Dir(c.path), p)
}

// DatabasePath returns the path to the SQLite content store
func (c *Config) DatabasePath() string {
	return c.resolve(c.Store.Path)
}

// QueuePath returns the path to the bbolt job queue
func (c *Config) QueuePath() string {
	return c.resolve(c.Queue.Path)
}

// QueueInterval returns how often the worker polls the queue
func (c *Config) QueueInterval() time.Duration {
	d, err := time.ParseDuration(c.Queue.Interval)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

// Registry builds the content type registry
func (c *Config) Registry() *models.Registry {
	return models.NewRegistry(c.Types...)
}

// CustomMappings converts the explicit mapping definitions
func (c *Config) CustomMappings() map[string]*models.Mapping {
	out := make(map[string]*models.Mapping, len(c.Mappings))
	for name, mc := range c.Mappings {
		m := models.NewMapping(name)
		for k, v := range mc.Params {
			m.Params[k] = v
		}
		for field, p := range mc.Properties {
			m.Properties[field] = models.FieldMapping{Type: p.Type, Format: p.Format, Store: p.Store, Array: p.Array}
		}
		out[name] = m
	}
	return out
}

// IndexSettings returns the settings the index is created with
func (c *Config) IndexSettings() models.IndexSettings {
	return models.IndexSettings{
		Name:         c.Index.Name,
		Vectorizer:   c.Index.Vectorizer,
		Description:  c.Index.Description,
		Tokenization: c.Index.Tokenization,
	}
}

// SlogLevel parses the configured log level
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Initialize writes a new configuration file at path
func Initialize(path, weaviateURL string) (*Config, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("config %s already exists", path)
	}

	cfg := Default()
	cfg.path = path
	if weaviateURL != "" {
		cfg.WeaviateURL = weaviateURL
	}
	cfg.Types = []models.TypeSpec{{
		Name:         "Page",
		Versioned:    true,
		Hierarchical: true,
		Searchable:   true,
		Fields: []models.FieldSpec{
			{Name: "Title", Kind: "Varchar(255)"},
			{Name: "MenuTitle", Kind: "Varchar(100)"},
			{Name: "Content", Kind: "HTMLText"},
		},
	}}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.MkdirAll(cfg.resolve(DataDir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s directory: %w", DataDir, err)
	}

	if err := cfg.Save(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SupportsContainsAny returns true if the server version supports ContainsAny filters
func (c *Config) SupportsContainsAny() bool {
	if c.ServerVersion == "" {
		return true
	}

	var major, minor int
	_, err := fmt.Sscanf(c.ServerVersion, "%d.%d", &major, &minor)
	if err != nil {
		return true
	}

	// ContainsAny requires Weaviate 1.21+
	return major > 1 || (major == 1 && minor >= 21)
}
