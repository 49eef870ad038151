package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forgeiq/forgeiq/internal/ailink"
	"github.com/forgeiq/forgeiq/internal/ailink/content"
	"github.com/forgeiq/forgeiq/internal/observability"
)

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Talk to the assistant",
	Long: `Send one message to the assistant, or start an interactive session when no
message is given. Only the last 10 turns of history are sent with each message.

--history loads prior turns from a JSON file ([{"role":"user","content":"..."}]).`,
	Args: cobra.MaximumNArgs(1),
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().String("history", "", "JSON file with prior turns")
	addOutputFlag(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	historyPath, err := cmd.Flags().GetString("history")
	if err != nil {
		return err
	}
	history, err := readTurnsFile(historyPath)
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}

	app, err := bootstrap(observability.CLILogger)
	if err != nil {
		return err
	}

	if len(args) == 1 {
		reply, callErr := app.service.Chat(cmd.Context(), args[0], history)
		return emitReply(cmd, reply, callErr)
	}
	return chatSession(cmd, app.service, history)
}

// chatSession reads one message per line until EOF or "exit". Failed turns
// are reported and left out of the history.
func chatSession(cmd *cobra.Command, service *ailink.Service, history []content.Message) error {
	out := cmd.OutOrStdout()
	scanner := bufio.NewScanner(cmd.InOrStdin())
	scanner.Buffer(make([]byte, 0, 64<<10), maxInputBytes)

	_, _ = fmt.Fprintln(out, "Type a message and press Enter. Ctrl+D or 'exit' quits.")
	for {
		_, _ = fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			_, _ = fmt.Fprintln(out)
			return scanner.Err()
		}
		message := strings.TrimSpace(scanner.Text())
		switch message {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		reply, callErr := service.Chat(cmd.Context(), message, history)
		if err := emitReply(cmd, reply, nil); err != nil {
			return err
		}
		if callErr != nil {
			if ailink.KindOf(callErr) == ailink.KindCanceled || ailink.KindOf(callErr) == ailink.KindUnconfigured {
				return callErr
			}
			continue
		}
		history = ailink.TrimHistory(append(history, content.User(message), content.Assistant(reply.Text)), ailink.ChatHistoryLimit)
	}
}
