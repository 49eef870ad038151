package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forgeiq/forgeiq/internal/ailink/prompt"
	"github.com/forgeiq/forgeiq/internal/config"
)

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "List the analysis prompts",
	Long:  "List embedded prompts merged with any overrides from ailink.prompts_dir. Required variables are marked with *.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(nil)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		registry, err := prompt.LoadRegistry(cfg.AILink.PromptsDir)
		if err != nil {
			return fmt.Errorf("loading prompts: %w", err)
		}

		formatter, err := formatterFor(cmd)
		if err != nil {
			return err
		}
		rendered, err := formatter.FormatPrompts(registry.List())
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
		return err
	},
}

func init() {
	rootCmd.AddCommand(promptsCmd)
	addOutputFlag(promptsCmd)
}
