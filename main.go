package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/mickamy/sqlmapper/config"
	"github.com/mickamy/sqlmapper/orm"
)

var version = "dev"

// schemaDump is the YAML document printed by -dump.
type schemaDump struct {
	Dialect  string          `yaml:"dialect"`
	Tables   []orm.TableMeta `yaml:"tables"`
	Entities []*orm.Entity   `yaml:"entities"`
}

func main() {
	configPath := flag.String("config", "", "path to the YAML config file (optional)")
	connection := flag.String("connection", "", "connection string (overrides config and "+config.EnvConnectionString+")")
	dump := flag.Bool("dump", true, "print the introspected schema and entities as YAML")
	cleanup := flag.Bool("cleanup", false, "delete every row of every entity")
	drop := flag.Bool("drop", false, "drop every table of the configured schemas")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("sqlmapper", version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *connection != "" {
		cfg.ConnectionString = *connection
	}

	logger, err := cfg.Logger()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, logger, *dump, *cleanup, *drop); err != nil {
		logger.Error("sqlmapper failed", zap.Error(err))
		stop()
		os.Exit(1) //nolint:gocritic // deferred sync is best effort
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger, dump, cleanup, drop bool) error {
	m, err := orm.Connect(ctx, cfg.Options(logger))
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer func() { _ = m.Close() }()

	if dump {
		out, err := yaml.Marshal(schemaDump{
			Dialect:  m.Dialect.Name(),
			Tables:   m.DBSchema,
			Entities: m.EntityList(),
		})
		if err != nil {
			return fmt.Errorf("dump: %w", err)
		}
		if _, err := os.Stdout.Write(out); err != nil {
			return fmt.Errorf("dump: %w", err)
		}
	}
	if cleanup {
		if err := m.CleanUpAllEntities(ctx); err != nil {
			return fmt.Errorf("cleanup: %w", err)
		}
		logger.Info("cleaned up all entities")
	}
	if drop {
		if err := m.DropAllTables(ctx); err != nil {
			return fmt.Errorf("drop: %w", err)
		}
		logger.Info("dropped all tables")
	}
	return nil
}
