package cmd

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forgeiq/forgeiq/internal/ailink"
	"github.com/forgeiq/forgeiq/internal/ailink/content"
	"github.com/forgeiq/forgeiq/internal/observability"
)

var generateCmd = &cobra.Command{
	Use:   "generate [prompt]",
	Short: "Send a raw prompt through the invoker",
	Long: `Send a prompt straight to the configured provider, without a template.

The prompt comes from the argument, or from stdin when the argument is "-" or
missing. --turns supplies a full JSON conversation instead
([{"role":"user","content":"..."}]).`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().String("system", "", "system instruction")
	generateCmd.Flags().String("turns", "", "JSON file with the conversation turns")
	generateCmd.Flags().Float64("temperature", 0, "sampling temperature (provider default when unset)")
	generateCmd.Flags().Int("max-tokens", 0, "maximum output tokens (provider default when unset)")
	generateCmd.Flags().String("model", "", "model override")
	generateCmd.Flags().String("role", "", "routing role used to pick the provider")
	generateCmd.Flags().Int("max-attempts", 0, "attempt budget override")
	addOutputFlag(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	turns, err := generateTurns(cmd, args)
	if err != nil {
		return err
	}

	req := ailink.GenerateRequest{Turns: turns}
	if req.Model, err = cmd.Flags().GetString("model"); err != nil {
		return err
	}
	if req.Role, err = cmd.Flags().GetString("role"); err != nil {
		return err
	}
	if req.MaxAttempts, err = cmd.Flags().GetInt("max-attempts"); err != nil {
		return err
	}
	if req.MaxAttempts < 0 {
		return errors.New("--max-attempts must not be negative")
	}
	if cmd.Flags().Changed("temperature") {
		v, err := cmd.Flags().GetFloat64("temperature")
		if err != nil {
			return err
		}
		req.Temperature = &v
	}
	if cmd.Flags().Changed("max-tokens") {
		v, err := cmd.Flags().GetInt("max-tokens")
		if err != nil {
			return err
		}
		req.MaxTokens = &v
	}

	app, err := bootstrap(observability.CLILogger)
	if err != nil {
		return err
	}
	reply, callErr := app.service.Generate(cmd.Context(), req)
	return emitReply(cmd, reply, callErr)
}

func generateTurns(cmd *cobra.Command, args []string) ([]content.Message, error) {
	path, err := cmd.Flags().GetString("turns")
	if err != nil {
		return nil, err
	}
	if path != "" {
		if len(args) > 0 {
			return nil, errors.New("use either a prompt argument or --turns, not both")
		}
		return readTurnsFile(path)
	}

	var text string
	if len(args) == 0 || args[0] == "-" {
		in, err := readLimited(cmd.InOrStdin())
		if err != nil {
			return nil, err
		}
		text = in
	} else {
		text = args[0]
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("prompt is required")
	}

	system, err := cmd.Flags().GetString("system")
	if err != nil {
		return nil, err
	}
	var turns []content.Message
	if strings.TrimSpace(system) != "" {
		turns = append(turns, content.System(system))
	}
	return append(turns, content.User(text)), nil
}
