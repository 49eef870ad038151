package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/forgeiq/forgeiq/internal/admission"
	"github.com/forgeiq/forgeiq/internal/config"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show the admission window",
	Long: `Show how much of the request budget is used.

Admission state lives in the serving process. Without --server this prints
only the configured quota; with --server it asks a running 'forgeiq serve'
for its live snapshot.`,
	Args: cobra.NoArgs,
	RunE: runUsage,
}

func init() {
	rootCmd.AddCommand(usageCmd)

	usageCmd.Flags().String("server", "", "base URL of a running forgeiq server (e.g. http://localhost:8080)")
	addOutputFlag(usageCmd)
}

func runUsage(cmd *cobra.Command, args []string) error {
	base, err := cmd.Flags().GetString("server")
	if err != nil {
		return err
	}
	formatter, err := formatterFor(cmd)
	if err != nil {
		return err
	}

	var rendered string
	if base != "" {
		usage, err := fetchUsage(cmd.Context(), &http.Client{Timeout: 10 * time.Second}, base)
		if err != nil {
			return err
		}
		rendered, err = formatter.FormatUsage(usage)
		if err != nil {
			return err
		}
	} else {
		cfg, err := config.Load(nil)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		rendered, err = formatter.FormatQuota(cfg.Admission.Quota())
		if err != nil {
			return err
		}
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return err
}

func fetchUsage(ctx context.Context, client *http.Client, base string) (admission.Usage, error) {
	var usage admission.Usage
	url := strings.TrimRight(base, "/") + "/v1/usage"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return usage, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return usage, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return usage, fmt.Errorf("GET %s: status %d: %s", url, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(&usage); err != nil {
		return usage, fmt.Errorf("decoding usage: %w", err)
	}
	return usage, nil
}
