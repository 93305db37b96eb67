// Package config loads keyscrub settings.
//
// Sources are layered in order: built-in defaults, a YAML file, .env files,
// then KEYSCRUB_* environment variables. The merged result is validated
// against an embedded CUE schema.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// EnvPrefix prefixes every environment override, as in KEYSCRUB_REDIS_URL.
const EnvPrefix = "KEYSCRUB"

// Tracking modes.
const (
	ModeHook    = "hook"
	ModeMonitor = "monitor"
)

type Config struct {
	Redis RedisConfig `yaml:"redis" json:"redis"`

	// Mode selects how dirty keys are observed: client hooks or MONITOR.
	Mode     string `yaml:"mode" json:"mode"`
	Strategy string `yaml:"strategy" json:"strategy"`

	// Diagnostics enables dirty-key reports. Off, reports are discarded and
	// keys are never fetched.
	Diagnostics bool `yaml:"diagnostics" json:"diagnostics"`

	// IgnoreKeys are path.Match patterns excluded from reports. Matching
	// keys are still deleted.
	IgnoreKeys     []string `yaml:"ignore_keys" json:"ignore_keys" split_words:"true"`
	SentinelPrefix string   `yaml:"sentinel_prefix" json:"sentinel_prefix" split_words:"true"`

	Log    LogConfig     `yaml:"log" json:"log"`
	Tables []TableConfig `yaml:"tables" json:"tables" ignored:"true"`
}

type RedisConfig struct {
	URL string `yaml:"url" json:"url"`
}

type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// TableConfig describes one relational database to reset between tests.
type TableConfig struct {
	Name     string   `yaml:"name" json:"name"`
	Driver   string   `yaml:"driver" json:"driver"`
	DSN      string   `yaml:"dsn" json:"dsn"`
	Tables   []string `yaml:"tables" json:"tables"`
	IDColumn string   `yaml:"id_column" json:"id_column"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Redis:          RedisConfig{URL: "redis://localhost:6379/0"},
		Mode:           ModeHook,
		Strategy:       "pseudo_delete",
		SentinelPrefix: "keyscrub:sentinel",
		Log:            LogConfig{Level: "info", Format: "text"},
	}
}

// Load builds a Config from file (skipped when empty), the given .env
// files and the environment. Variables already set in the environment win
// over .env files.
func Load(file string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if file != "" {
		if err := cfg.readFile(file); err != nil {
			return nil, err
		}
	}
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return nil, fmt.Errorf("load env files: %w", err)
		}
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) readFile(name string) error {
	f, err := os.Open(name)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("parse config %s: %w", name, err)
	}
	return nil
}

func (c *Config) normalize() {
	c.Mode = strings.ToLower(c.Mode)
	c.Strategy = strings.ReplaceAll(strings.ToLower(c.Strategy), "-", "_")
	c.Log.Level = strings.ToLower(c.Log.Level)
	c.Log.Format = strings.ToLower(c.Log.Format)
	if c.IgnoreKeys == nil {
		c.IgnoreKeys = []string{}
	}
	if c.Tables == nil {
		c.Tables = []TableConfig{}
	}
	for i := range c.Tables {
		if c.Tables[i].IDColumn == "" {
			c.Tables[i].IDColumn = "id"
		}
		if c.Tables[i].Tables == nil {
			c.Tables[i].Tables = []string{}
		}
	}
}

// Validate checks c against the schema and that every ignore pattern is a
// well-formed glob.
func (c *Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	value := schema.LookupPath(cue.ParsePath("#Config")).Unify(ctx.Encode(c))
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return &ValidationError{Details: cueerrors.Details(err, nil)}
	}

	for _, p := range c.IgnoreKeys {
		if _, err := path.Match(p, ""); err != nil {
			return &ValidationError{Details: fmt.Sprintf("ignore_keys: bad pattern %q: %v", p, err)}
		}
	}
	return nil
}

// ValidationError reports a configuration that does not satisfy the schema.
type ValidationError struct {
	Details string
}

func (e *ValidationError) Error() string {
	return "invalid config: " + strings.TrimSpace(e.Details)
}
