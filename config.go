package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

type SourceType string

const (
	SourceHTTP     SourceType = "http"
	SourcePostgres SourceType = "postgres"
	SourceSQLite   SourceType = "sqlite"
)

const (
	defaultFetchTimeout = 10 * time.Second
	defaultPageSize     = 100
)

type SourceConfig struct {
	Name string     `json:"name"`
	Type SourceType `json:"type"`

	// http
	URL          string `json:"url,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
	ConnectionID string `json:"connection_id,omitempty"`

	// postgres
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
	Database string `json:"database,omitempty"`
	SSLMode  string `json:"sslmode,omitempty"`

	// sqlite
	Path string `json:"path,omitempty"`
}

func (sc *SourceConfig) Validate() error {
	if strings.TrimSpace(sc.Name) == "" {
		return fmt.Errorf("source name is required")
	}
	switch sc.Type {
	case SourceHTTP:
		if sc.URL == "" {
			return fmt.Errorf("source %s: http source requires a url", sc.Name)
		}
	case SourceSQLite:
		if strings.TrimSpace(sc.Path) == "" {
			return fmt.Errorf("source %s: sqlite source requires a file path", sc.Name)
		}
	case SourcePostgres, "":
		if sc.Host == "" {
			return fmt.Errorf("source %s: postgres source requires a host", sc.Name)
		}
	default:
		return fmt.Errorf("source %s: unknown type %q", sc.Name, sc.Type)
	}
	return nil
}

// Duration reads "10s" style strings from JSON.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

type Config struct {
	Sources      []*SourceConfig `json:"sources"`
	FetchTimeout Duration        `json:"fetch_timeout,omitempty"`
	PageSize     int             `json:"page_size,omitempty"`
	LogFile      string          `json:"log_file,omitempty"`
	SeqURL       string          `json:"seq_url,omitempty"`
	ListenAddr   string          `json:"listen_addr,omitempty"`

	path string
}

func defaultConfigPath() string {
	if cwd, err := os.Getwd(); err == nil {
		localConfig := filepath.Join(cwd, "basable.json")
		if _, err := os.Stat(localConfig); err == nil {
			return localConfig
		}
	}
	return filepath.Join(os.Getenv("HOME"), ".basable", "config.json")
}

// LoadConfig reads the config file at path, or the default location when
// path is empty. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = defaultConfigPath()
	}

	cfg := &Config{path: path}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	cfg.applyDefaults()
	for _, src := range cfg.Sources {
		if err := src.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = Duration(defaultFetchTimeout)
	}
	if c.PageSize <= 0 {
		c.PageSize = defaultPageSize
	}
	if c.LogFile == "" {
		c.LogFile = filepath.Join(filepath.Dir(c.path), "basable.log")
	}
	if c.ListenAddr == "" {
		c.ListenAddr = ":5000"
	}
	for _, src := range c.Sources {
		if src.Type == "" {
			src.Type = SourcePostgres
		}
		if src.Type == SourcePostgres {
			if src.Port == 0 {
				src.Port = 5432
			}
			if src.SSLMode == "" {
				src.SSLMode = "disable"
			}
		}
	}
}

func (c *Config) Path() string {
	return c.path
}

func (c *Config) Timeout() time.Duration {
	return time.Duration(c.FetchTimeout)
}

func (c *Config) Save() error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// AddSource registers a source given on the command line, replacing any
// configured source with the same name.
func (c *Config) AddSource(src *SourceConfig) error {
	if src.Type == SourcePostgres && src.Port == 0 {
		src.Port = 5432
	}
	if err := src.Validate(); err != nil {
		return err
	}
	for i, existing := range c.Sources {
		if existing.Name == src.Name {
			c.Sources[i] = src
			return nil
		}
	}
	c.Sources = append(c.Sources, src)
	return nil
}

func (c *Config) Source(name string) (*SourceConfig, bool) {
	for _, src := range c.Sources {
		if src.Name == name {
			return src, true
		}
	}
	return nil, false
}

// SortedSources returns copies of the configured sources ordered by name.
func (c *Config) SortedSources() []*SourceConfig {
	sources := make([]*SourceConfig, 0, len(c.Sources))
	for _, src := range c.Sources {
		copySrc := *src
		sources = append(sources, &copySrc)
	}
	sort.Slice(sources, func(i, j int) bool {
		return strings.ToLower(sources[i].Name) < strings.ToLower(sources[j].Name)
	})
	return sources
}
