// Package proxycmder provides the proxy server command.
package proxycmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/papercomputeco/yui/cmd/yui/serve/services"
	"github.com/papercomputeco/yui/pkg/config"
	"github.com/papercomputeco/yui/pkg/logger"
	"github.com/papercomputeco/yui/proxy"
)

type proxyCommander struct {
	listen      string
	upstream    string
	provider    string
	apiKey      string
	sqlitePath  string
	postgresDSN string
	corsOrigins string
	staticDir   string
	timeout     uint
	forceTags   bool
	kafka       string
	kafkaTopic  string
	dev         bool
	debug       bool

	configDir string
	cfg       *config.Config
	viper     *viper.Viper
	logger    *zap.Logger
}

var proxyFlagKeys = []string{
	config.FlagListen,
	config.FlagUpstream,
	config.FlagProvider,
	config.FlagAPIKey,
	config.FlagSQLite,
	config.FlagPostgres,
	config.FlagCORSOrigins,
	config.FlagStaticDir,
	config.FlagTimeout,
	config.FlagForceTags,
	config.FlagKafka,
	config.FlagKafkaTopic,
}

const proxyLongDesc string = `Run the chat proxy server.

The proxy forwards chat requests to the configured OpenAI-compatible
upstream, relays streamed replies and splits reasoning from the answer.
Replies that name a conversation are recorded in the configured store.

In production mode the built web client is served as well.`

const proxyShortDesc string = "Run the yui chat proxy"

func NewProxyCmd() *cobra.Command {
	cmder := &proxyCommander{}

	cmd := &cobra.Command{
		Use:   "proxy",
		Short: proxyShortDesc,
		Long:  proxyLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			cmder.viper, err = services.LoadViper(cmd, config.ServeFlags, proxyFlagKeys)
			if err != nil {
				return err
			}
			cmder.cfg = config.Unmarshal(cmder.viper)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run()
		},
	}

	config.AddStringFlag(cmd, config.ServeFlags, config.FlagListen, &cmder.listen)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagUpstream, &cmder.upstream)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagProvider, &cmder.provider)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagAPIKey, &cmder.apiKey)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagPostgres, &cmder.postgresDSN)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagCORSOrigins, &cmder.corsOrigins)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagStaticDir, &cmder.staticDir)
	config.AddUintFlag(cmd, config.ServeFlags, config.FlagTimeout, &cmder.timeout)
	config.AddBoolFlag(cmd, config.ServeFlags, config.FlagForceTags, &cmder.forceTags)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagKafka, &cmder.kafka)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagKafkaTopic, &cmder.kafkaTopic)
	cmd.Flags().BoolVar(&cmder.dev, "dev", false, "Development mode: skip the web client and allow the dev server origins")

	return cmd
}

func (c *proxyCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	driver, err := services.NewStorageDriver(context.Background(), c.cfg, c.configDir, c.logger)
	if err != nil {
		return err
	}
	defer driver.Close()

	publisher, err := services.NewPublisher(c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	proxyConfig := services.NewProxyConfig(c.cfg, c.dev, publisher)
	services.WatchReasoning(c.viper, proxyConfig.Detector, c.logger)
	p, err := proxy.New(proxyConfig, driver, c.logger)
	if err != nil {
		return fmt.Errorf("creating proxy: %w", err)
	}
	defer p.Close()

	c.logger.Info("starting proxy server",
		zap.String("listen", proxyConfig.ListenAddr),
		zap.String("upstream", proxyConfig.UpstreamURL),
		zap.String("provider", proxyConfig.Provider),
	)

	return p.Run()
}
