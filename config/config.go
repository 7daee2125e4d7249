// Package config loads mapper settings from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/mickamy/sqlmapper/orm"
)

// Environment variables overriding the file.
const (
	EnvConnectionString = "SQLMAPPER_CONNECTION_STRING"
	EnvLogLevel         = "SQLMAPPER_LOG_LEVEL"
)

type Config struct {
	ConnectionString string                `yaml:"connectionString"`
	Include          map[string]bool       `yaml:"include"`
	Ignore           map[string]IgnoreRule `yaml:"ignore"`
	AutoTimestamp    AutoTimestamp         `yaml:"autoTimestamp"`
	Schema           []string              `yaml:"schema"`
	Limit            orm.LimitOptions      `yaml:"limit"`
	Cache            Cache                 `yaml:"cache"`
	Pool             orm.PoolOptions       `yaml:"pool"`
	LogLevel         string                `yaml:"logLevel"`
	Debug            bool                  `yaml:"debug"`
}

// IgnoreRule is either true (ignore the whole table) or a map of column
// names to true.
//
//	ignore:
//	  versions: true
//	  movies:
//	    secret: true
type IgnoreRule struct {
	Table   bool
	Columns []string
}

func (r *IgnoreRule) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		return node.Decode(&r.Table)
	case yaml.MappingNode:
		var cols map[string]bool
		if err := node.Decode(&cols); err != nil {
			return err //nolint:wrapcheck // pass through
		}
		for c, ignored := range cols {
			if ignored {
				r.Columns = append(r.Columns, c)
			}
		}
		slices.Sort(r.Columns)
		return nil
	case yaml.SequenceNode:
		return node.Decode(&r.Columns)
	}
	return fmt.Errorf("config: line %d: ignore rule must be a bool, a map or a list", node.Line)
}

// AutoTimestamp is either a bool or a map naming the columns.
//
//	autoTimestamp:
//	  createdAt: inserted_at
//	  updatedAt: modified_at
type AutoTimestamp struct {
	Enabled   bool   `yaml:"-"`
	CreatedAt string `yaml:"createdAt"`
	UpdatedAt string `yaml:"updatedAt"`
}

func (a *AutoTimestamp) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*a = AutoTimestamp{}
		return node.Decode(&a.Enabled)
	}
	type plain AutoTimestamp
	var p plain
	if err := node.Decode(&p); err != nil {
		return err //nolint:wrapcheck // pass through
	}
	*a = AutoTimestamp(p)
	a.Enabled = true
	return nil
}

// Cache enables the find cache. TTL 0 only deduplicates concurrent finds.
type Cache struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
}

// Default returns the configuration used when no file is given:
// auto-timestamps on created_at/updated_at and info logging.
func Default() Config {
	return Config{
		AutoTimestamp: AutoTimestamp{Enabled: true},
		LogLevel:      "info",
	}
}

// Load reads the YAML file at path, when given, over Default and then
// applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.ConnectionString = getenv(EnvConnectionString, cfg.ConnectionString)
	cfg.LogLevel = getenv(EnvLogLevel, cfg.LogLevel)
	return cfg, cfg.Validate()
}

// Validate reports settings that cannot work.
func (c Config) Validate() error {
	var errs []error
	if c.Limit.Default < 0 || c.Limit.Max < 0 {
		errs = append(errs, errors.New("config: limit values must not be negative"))
	}
	if c.Limit.Max > 0 && c.Limit.Default > c.Limit.Max {
		errs = append(errs, fmt.Errorf("config: limit.default %d exceeds limit.max %d", c.Limit.Default, c.Limit.Max))
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("config: logLevel: %w", err))
	}
	return errors.Join(errs...)
}

// Logger builds a production zap logger at LogLevel.
func (c Config) Logger() (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("config: logLevel: %w", err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build() //nolint:wrapcheck // pass through
}

// Options converts the configuration to orm.Options.
func (c Config) Options(logger *zap.Logger) orm.Options {
	opts := orm.Options{
		ConnectionString: c.ConnectionString,
		Logger:           logger,
		Include:          c.Include,
		Schemas:          c.Schema,
		Limit:            c.Limit,
		Pool:             c.Pool,
		Debug:            c.Debug,
	}
	if len(c.Ignore) > 0 {
		opts.Ignore = make(map[string][]string, len(c.Ignore))
		for table, rule := range c.Ignore {
			switch {
			case rule.Table:
				opts.Ignore[table] = nil
			case len(rule.Columns) > 0:
				opts.Ignore[table] = rule.Columns
			}
		}
	}
	if c.AutoTimestamp.Enabled {
		ts := orm.DefaultAutoTimestamp()
		if c.AutoTimestamp.CreatedAt != "" {
			ts.CreatedAt = c.AutoTimestamp.CreatedAt
		}
		if c.AutoTimestamp.UpdatedAt != "" {
			ts.UpdatedAt = c.AutoTimestamp.UpdatedAt
		}
		opts.AutoTimestamp = ts
	}
	if c.Cache.Enabled {
		opts.Cache = &orm.CacheOptions{TTL: c.Cache.TTL}
	}
	return opts
}

func getenv(k, fallback string) string {
	if v, ok := os.LookupEnv(k); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}
