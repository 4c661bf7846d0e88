// Package initcmder provides the init command for initializing a local .yui
// directory in the current working directory.
package initcmder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/yui/pkg/cliui"
	"github.com/papercomputeco/yui/pkg/config"
	"github.com/papercomputeco/yui/pkg/dotdir"
)

const configFile = "config.toml"

const initLongDesc string = `Initialize a new .yui/ directory in the current working directory.

Creates a local .yui/ directory that takes precedence over the default
~/.yui/ directory for configuration, the SQLite database and the chat
session. A config.toml with default values is written unless one exists.

Use --preset to start from an upstream preset:
  openai     https://api.openai.com/v1
  deepseek   https://api.deepseek.com/v1
  vllm       http://127.0.0.1:8000/v1 (inline <think> tags)
  sglang     http://127.0.0.1:30000/v1 (inline <think> tags)

Examples:
  yui init
  yui init --preset deepseek`

const initShortDesc string = "Initialize a local .yui/ directory"

func NewInitCmd() *cobra.Command {
	var preset string

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd, preset)
		},
	}

	cmd.Flags().StringVar(&preset, "preset", "", "Upstream preset to configure (openai, deepseek, vllm, sglang)")
	_ = cmd.RegisterFlagCompletionFunc("preset", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return config.ValidPresetNames(), cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runInit(cmd *cobra.Command, preset string) error {
	cfg := config.NewDefaultConfig()
	if preset != "" {
		var err error
		cfg, err = config.PresetConfig(preset)
		if err != nil {
			return err
		}
	}

	dir, err := dotdir.NewManager().InitLocal()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	path := filepath.Join(dir, configFile)
	_, err = os.Stat(path)
	switch {
	case err == nil && preset == "":
		fmt.Fprintf(out, "Already initialized: %s\n", dir)
		return nil
	case err != nil && !errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("reading config: %w", err)
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return err
	}
	if err := cfger.SaveConfig(cfg); err != nil {
		return err
	}

	fmt.Fprintf(out, "%s Initialized .yui directory: %s\n", cliui.SuccessMark, dir)
	if preset != "" {
		fmt.Fprintf(out, "  %s %s (%s)\n",
			cliui.KeyStyle.Render("Preset:"),
			cliui.ValueStyle.Render(preset),
			cliui.DimStyle.Render(cfg.Proxy.Upstream),
		)
	}
	return nil
}
