// Package initconfigcmder provides the init-config command, which writes a
// .env template with every environment variable yui reads.
package initconfigcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/yui/pkg/cliui"
	"github.com/papercomputeco/yui/pkg/config"
)

const initConfigLongDesc string = `Write a .env template.

The template lists every environment variable yui reads, with the
upstream URL, API key, listen addresses, storage and event stream
settings. Environment variables override config.toml; CLI flags override
both.

Examples:
  yui init-config
  yui init-config -o deploy/.env --force`

const initConfigShortDesc string = "Write a .env configuration template"

func NewInitConfigCmd() *cobra.Command {
	var (
		output string
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "init-config",
		Short: initConfigShortDesc,
		Long:  initConfigLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.WriteDotEnvTemplate(output, force); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s Wrote %s\n", cliui.SuccessMark, output)
			fmt.Fprintf(out, "  %s\n", cliui.DimStyle.Render("Set OPENAI_BASE_URL and OPENAI_API_KEY before running yui serve."))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", ".env", "Path of the template to write")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")

	return cmd
}
