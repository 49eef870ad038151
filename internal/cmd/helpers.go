package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forgeiq/forgeiq/internal/ailink"
	"github.com/forgeiq/forgeiq/internal/ailink/content"
	"github.com/forgeiq/forgeiq/internal/output"
)

// maxInputBytes caps any file or stdin read into a prompt variable or turn.
const maxInputBytes = 256 << 10

func addOutputFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", "table", "output format: table, json, markdown")
}

func formatterFor(cmd *cobra.Command) (output.Formatter, error) {
	value, err := cmd.Flags().GetString("output")
	if err != nil {
		return nil, err
	}
	format, err := output.ParseFormat(value)
	if err != nil {
		return nil, err
	}
	return output.NewFormatter(format), nil
}

// emitReply prints reply in the selected format and returns callErr so the
// process exits with the code for its kind.
func emitReply(cmd *cobra.Command, reply ailink.Reply, callErr error) error {
	formatter, err := formatterFor(cmd)
	if err != nil {
		return err
	}
	rendered, err := formatter.FormatReply(reply)
	if err != nil {
		return fmt.Errorf("rendering reply: %w", err)
	}
	if _, err := fmt.Fprintln(cmd.OutOrStdout(), rendered); err != nil {
		return err
	}
	return callErr
}

// parseAssignments turns repeated key=value flags into a map. A value of
// @path reads the file, @- reads stdin.
func parseAssignments(values []string, stdin io.Reader) (map[string]string, error) {
	out := make(map[string]string, len(values))
	for _, raw := range values {
		key, value, ok := strings.Cut(raw, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --var %q: expected key=value", raw)
		}
		resolved, err := resolveValue(value, stdin)
		if err != nil {
			return nil, fmt.Errorf("--var %s: %w", key, err)
		}
		out[key] = resolved
	}
	return out, nil
}

// parseLists collects repeated name=item flags in order.
func parseLists(values []string) (map[string][]string, error) {
	out := make(map[string][]string)
	for _, raw := range values {
		name, item, ok := strings.Cut(raw, "=")
		name = strings.TrimSpace(name)
		item = strings.TrimSpace(item)
		if !ok || name == "" || item == "" {
			return nil, fmt.Errorf("invalid --list %q: expected name=item", raw)
		}
		out[name] = append(out[name], item)
	}
	return out, nil
}

func resolveValue(value string, stdin io.Reader) (string, error) {
	path, isRef := strings.CutPrefix(value, "@")
	if !isRef {
		return value, nil
	}
	if path == "-" {
		return readLimited(stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close() //nolint:errcheck
	return readLimited(f)
}

func readLimited(r io.Reader) (string, error) {
	if r == nil {
		return "", fmt.Errorf("no input available")
	}
	data, err := io.ReadAll(io.LimitReader(r, maxInputBytes+1))
	if err != nil {
		return "", err
	}
	if len(data) > maxInputBytes {
		return "", fmt.Errorf("input exceeds %d bytes", maxInputBytes)
	}
	return string(data), nil
}

// readTurns decodes a JSON array of {role, content} objects.
func readTurns(r io.Reader) ([]content.Message, error) {
	raw, err := readLimited(r)
	if err != nil {
		return nil, err
	}
	var turns []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal([]byte(raw), &turns); err != nil {
		return nil, fmt.Errorf("decoding turns: %w", err)
	}
	out := make([]content.Message, 0, len(turns))
	for i, t := range turns {
		role, err := content.ParseRole(t.Role)
		if err != nil {
			return nil, fmt.Errorf("turn %d: %w", i, err)
		}
		out = append(out, content.Text(role, t.Content))
	}
	return out, nil
}

func readTurnsFile(path string) ([]content.Message, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck
	return readTurns(f)
}
