// Package yuicmder is the root yui command.
package yuicmder

import (
	"github.com/spf13/cobra"

	versioncmder "github.com/papercomputeco/yui/cmd/version"
	chatcmder "github.com/papercomputeco/yui/cmd/yui/chat"
	configcmder "github.com/papercomputeco/yui/cmd/yui/config"
	initcmder "github.com/papercomputeco/yui/cmd/yui/init"
	initconfigcmder "github.com/papercomputeco/yui/cmd/yui/initconfig"
	servecmder "github.com/papercomputeco/yui/cmd/yui/serve"
	"github.com/papercomputeco/yui/pkg/cliui"
)

const yuiLongDesc string = `yui is a chat proxy for OpenAI-compatible models.

It streams replies with the model's reasoning split from the answer,
stores conversations, and serves them to the web client, the terminal
and MCP clients.

Run services using:
  yui serve            Run the proxy, database API and web client together
  yui serve api        Run the database API server
  yui serve proxy      Run the chat proxy

Chat from the terminal:
  yui chat --model deepseek-reasoner`

const yuiShortDesc string = "yui - reasoning-aware chat proxy"

func NewYuiCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "yui",
		Short:        yuiShortDesc,
		Long:         yuiLongDesc,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if noColor, _ := cmd.Flags().GetBool("no-color"); noColor {
				cliui.DisableColor()
			}
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().Bool("no-color", false, "Disable colored output")
	cmd.PersistentFlags().String("config-dir", "", "Directory holding config.toml and local state (default ./.yui or ~/.yui)")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(initconfigcmder.NewInitConfigCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
