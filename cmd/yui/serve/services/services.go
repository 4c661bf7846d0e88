// Package services builds the shared pieces of the serve commands from the
// effective configuration: storage driver, event publisher and proxy config.
package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/papercomputeco/yui/cmd/yui/sqlitepath"
	"github.com/papercomputeco/yui/pkg/config"
	"github.com/papercomputeco/yui/pkg/eventstream"
	"github.com/papercomputeco/yui/pkg/eventstream/kafka"
	"github.com/papercomputeco/yui/pkg/eventstream/nop"
	"github.com/papercomputeco/yui/pkg/reasoning"
	"github.com/papercomputeco/yui/pkg/storage"
	"github.com/papercomputeco/yui/pkg/storage/inmemory"
	"github.com/papercomputeco/yui/pkg/storage/postgres"
	"github.com/papercomputeco/yui/pkg/storage/sqlite"
	"github.com/papercomputeco/yui/proxy"
)

// InMemoryPath selects the in-memory store instead of a SQLite file.
const InMemoryPath = ":memory:"

// LoadConfig resolves the effective configuration of cmd: the working
// directory .env is loaded into the environment, then flags, environment,
// config.toml and defaults are merged by viper in that order.
func LoadConfig(cmd *cobra.Command, fs config.FlagSet, keys []string) (*config.Config, error) {
	v, err := LoadViper(cmd, fs, keys)
	if err != nil {
		return nil, err
	}
	return config.Unmarshal(v), nil
}

// LoadViper is LoadConfig for callers that keep watching the settings.
func LoadViper(cmd *cobra.Command, fs config.FlagSet, keys []string) (*viper.Viper, error) {
	if err := config.LoadDotEnv(""); err != nil {
		return nil, err
	}

	configDir, _ := cmd.Flags().GetString("config-dir")
	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	config.BindRegisteredFlags(v, cmd, fs, keys)
	return v, nil
}

// WatchReasoning applies reasoning.model_patterns edits in config.toml to
// detector without a restart.
func WatchReasoning(v *viper.Viper, detector *reasoning.Detector, logger *zap.Logger) {
	watching := config.WatchConfig(v, func(cfg *config.Config) {
		patterns := config.SplitList(cfg.Reasoning.ModelPatterns)
		detector.SetPatterns(patterns...)
		logger.Info("reloaded reasoning model patterns", zap.Strings("patterns", detector.Patterns()))
	})
	if watching {
		logger.Debug("watching config file", zap.String("path", v.ConfigFileUsed()))
	}
}

// NewStorageDriver opens PostgreSQL when a DSN is configured, otherwise the
// SQLite database (default .yui/chatbox.db).
func NewStorageDriver(ctx context.Context, cfg *config.Config, configDir string, logger *zap.Logger) (storage.Driver, error) {
	if cfg.Storage.PostgresDSN != "" {
		driver, err := postgres.NewDriver(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL driver: %w", err)
		}
		logger.Info("using PostgreSQL storage")
		return driver, nil
	}

	if cfg.Storage.SQLitePath == InMemoryPath {
		logger.Info("using in-memory storage")
		return inmemory.NewDriver(), nil
	}

	path, err := sqlitepath.ResolveSQLitePath(cfg.Storage.SQLitePath, configDir)
	if err != nil {
		return nil, err
	}

	driver, err := sqlite.NewSQLiteDriver(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create SQLite driver: %w", err)
	}
	logger.Info("using SQLite storage", zap.String("path", path))
	return driver, nil
}

// NewPublisher returns a Kafka publisher when brokers are configured and
// the no-op publisher otherwise.
func NewPublisher(cfg *config.Config, logger *zap.Logger) (eventstream.Publisher, error) {
	brokers := config.SplitList(cfg.EventStream.KafkaBrokers)

	switch {
	case cfg.EventStream.Provider == config.EventStreamKafka && len(brokers) == 0:
		return nil, fmt.Errorf("event stream provider %q requires kafka brokers", config.EventStreamKafka)
	case len(brokers) == 0:
		return nop.NewPublisher(), nil
	}

	pub, err := kafka.NewPublisher(kafka.Config{
		Brokers: brokers,
		Topic:   cfg.EventStream.KafkaTopic,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating kafka publisher: %w", err)
	}

	logger.Info("publishing message events to kafka",
		zap.Strings("brokers", brokers),
		zap.String("topic", cfg.EventStream.KafkaTopic),
	)
	return pub, nil
}

// NewProxyConfig maps the effective configuration onto a proxy.Config.
// dev forces development mode.
func NewProxyConfig(cfg *config.Config, dev bool, publisher eventstream.Publisher) proxy.Config {
	mode := cfg.Proxy.Mode
	if dev {
		mode = config.ModeDevelopment
	}

	pc := proxy.Config{
		ListenAddr:  cfg.Proxy.Listen,
		UpstreamURL: cfg.Proxy.Upstream,
		APIKey:      cfg.Proxy.APIKey,
		Provider:    cfg.Proxy.Provider,
		Mode:        mode,
		CORSOrigins: config.SplitList(cfg.Proxy.CORSOrigins),
		Timeout:     time.Duration(cfg.Proxy.Timeout) * time.Second,
		ForceTags:   cfg.Reasoning.ForceTags,
		Detector:    reasoning.NewDetector(config.SplitList(cfg.Reasoning.ModelPatterns)...),
		Publisher:   publisher,
	}

	if mode == config.ModeProduction {
		pc.StaticDir = proxy.FindStaticDir(StaticDirCandidates(cfg.Proxy.StaticDir)...)
	}
	return pc
}

// StaticDirCandidates lists where a built web client may live: the
// configured directory, then static/ and frontend/dist/ in the working
// directory and next to the executable.
func StaticDirCandidates(configured string) []string {
	candidates := []string{configured, "static", filepath.Join("frontend", "dist")}

	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		candidates = append(candidates,
			filepath.Join(dir, "static"),
			filepath.Join(dir, "frontend", "dist"),
		)
	}
	return candidates
}
