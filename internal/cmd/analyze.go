package cmd

import (
	"github.com/spf13/cobra"

	"github.com/forgeiq/forgeiq/internal/ailink"
	"github.com/forgeiq/forgeiq/internal/observability"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <prompt-slug>",
	Short: "Run an analysis prompt",
	Long: `Render an analysis prompt with variables and send it to the provider.

Examples:
  forgeiq analyze requirements-analysis --var requirements=@reqs.md
  forgeiq analyze decision-analysis --var decision_context="Second shift?" \
    --list options="Hire" --list options="Overtime" --list criteria=Cost

Run 'forgeiq prompts' for the available slugs and their variables.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringArray("var", nil, "template variable as key=value (value @file or @- reads input)")
	analyzeCmd.Flags().StringArray("list", nil, "list item as name=item (repeat to append)")
	analyzeCmd.Flags().String("model", "", "model override")
	analyzeCmd.Flags().String("role", "", "routing role (defaults to the prompt slug)")
	addOutputFlag(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	rawVars, err := cmd.Flags().GetStringArray("var")
	if err != nil {
		return err
	}
	variables, err := parseAssignments(rawVars, cmd.InOrStdin())
	if err != nil {
		return err
	}
	rawLists, err := cmd.Flags().GetStringArray("list")
	if err != nil {
		return err
	}
	lists, err := parseLists(rawLists)
	if err != nil {
		return err
	}

	req := ailink.AnalyzeRequest{Slug: args[0], Variables: variables, Lists: lists}
	if req.Model, err = cmd.Flags().GetString("model"); err != nil {
		return err
	}
	if req.Role, err = cmd.Flags().GetString("role"); err != nil {
		return err
	}

	app, err := bootstrap(observability.CLILogger)
	if err != nil {
		return err
	}
	reply, callErr := app.service.Analyze(cmd.Context(), req)
	return emitReply(cmd, reply, callErr)
}
