// Package apicmder provides the API server command.
package apicmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/yui/api"
	"github.com/papercomputeco/yui/cmd/yui/serve/services"
	"github.com/papercomputeco/yui/pkg/config"
	"github.com/papercomputeco/yui/pkg/logger"
)

type apiCommander struct {
	listen      string
	sqlitePath  string
	postgresDSN string
	debug       bool

	configDir string
	cfg       *config.Config
	logger    *zap.Logger
}

var apiFlagKeys = []string{
	config.FlagAPIListen,
	config.FlagSQLite,
	config.FlagPostgres,
}

const apiLongDesc string = `Run the database API server.

Serves the conversation, message, folder, model source and settings
endpoints under /api/db and the MCP endpoint at /mcp.`

const apiShortDesc string = "Run the yui database API server"

func NewAPICmd() *cobra.Command {
	cmder := &apiCommander{}

	cmd := &cobra.Command{
		Use:   "api",
		Short: apiShortDesc,
		Long:  apiLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			cmder.cfg, err = services.LoadConfig(cmd, config.ServeFlags, apiFlagKeys)
			return err
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

	config.AddStringFlag(cmd, config.ServeFlags, config.FlagAPIListen, &cmder.listen)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagPostgres, &cmder.postgresDSN)

	return cmd
}

func (c *apiCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	driver, err := services.NewStorageDriver(context.Background(), c.cfg, c.configDir, c.logger)
	if err != nil {
		return err
	}
	defer driver.Close()

	server, err := api.NewServer(api.Config{ListenAddr: c.cfg.API.Listen}, driver, c.logger)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	return server.Run()
}
