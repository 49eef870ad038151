package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/forgeiq/forgeiq/internal/ailink/prompt"
	"github.com/forgeiq/forgeiq/internal/config"
	"github.com/forgeiq/forgeiq/internal/observability"
	"github.com/forgeiq/forgeiq/internal/output"
	"github.com/forgeiq/forgeiq/internal/server"
)

var doctorConnect bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Run diagnostic checks on the installation and configuration.

--connect also sends the connection-test prompt to the default provider. That
call counts against the admission window like any other.`,
	RunE: runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	log := observability.CLILogger
	log.Info("=== " + config.AppName + " doctor ===")
	log.Info("")

	const total = 8
	allChecks := true
	step := func(n int, label string) string { return fmt.Sprintf("[%d/%d] %s...", n, total, label) }

	goVersion := runtime.Version()
	if goVersion >= "go1.23" {
		log.Info(step(1, "Checking Go version")+" ✅ "+goVersion, zap.String("go_version", goVersion))
	} else {
		log.Warn(step(1, "Checking Go version")+" ⚠️  "+goVersion+" (recommended: go1.23+)", zap.String("go_version", goVersion))
		allChecks = false
	}

	version := crucible.GetVersion()
	if version.Crucible != "" && version.Gofulmen != "" {
		log.Info(fmt.Sprintf("%s ✅ gofulmen v%s, crucible v%s", step(2, "Checking Gofulmen"), version.Gofulmen, version.Crucible))
	} else {
		log.Error(step(2, "Checking Gofulmen") + " ❌ version metadata unavailable")
		allChecks = false
	}

	configPath := config.DefaultConfigPath()
	if configPath == "" {
		log.Error(step(3, "Checking config directory") + " ❌ cannot resolve config directory")
		allChecks = false
	} else {
		log.Info(fmt.Sprintf("%s ✅ %s (%s)", step(3, "Checking config directory"), filepath.Dir(configPath), existenceStatus(fileExists(configPath))))
	}

	log.Info(fmt.Sprintf("%s ✅ %s/%s", step(4, "Checking environment"), runtime.GOOS, runtime.GOARCH),
		zap.String("os", runtime.GOOS),
		zap.String("arch", runtime.GOARCH))

	cfg, cfgErr := config.Load(nil)
	if cfgErr != nil {
		log.Error(step(5, "Loading config")+" ❌ invalid", zap.Error(cfgErr))
		log.Warn(step(6, "Loading prompts") + " ⚠️  skipped (config not loaded)")
		log.Warn(step(7, "Checking AI provider") + " ⚠️  skipped (config not loaded)")
		log.Warn(step(8, "Testing connection") + " ⚠️  skipped (config not loaded)")
		log.Warn("⚠️  Some checks failed. Review the output above for details.")
		return cfgErr
	}
	quota := cfg.Admission.Quota()
	log.Info(fmt.Sprintf("%s ✅ %d requests per %s, %d attempts", step(5, "Loading config"), quota.MaxRequests, quota.Window, cfg.Retry.MaxAttempts))

	if registry, err := prompt.LoadRegistry(cfg.AILink.PromptsDir); err != nil {
		log.Error(step(6, "Loading prompts")+" ❌ "+err.Error(), zap.String("prompts_dir", cfg.AILink.PromptsDir))
		allChecks = false
	} else {
		log.Info(fmt.Sprintf("%s ✅ %d prompts", step(6, "Loading prompts"), len(registry.List())))
	}

	app, err := wire(cfg, log)
	if err != nil {
		log.Error(step(7, "Checking AI provider")+" ❌ "+err.Error(), zap.Error(err))
		return err
	}
	if app.providers.Configured("") {
		log.Info(step(7, "Checking AI provider") + " ✅ configured")
	} else {
		log.Warn(step(7, "Checking AI provider") + " ⚠️  no credential (set GOOGLE_API_KEY, pass --api-key, or run 'forgeiq doctor init --api-key prompt')")
		allChecks = false
	}

	var connectErr error
	if !doctorConnect {
		log.Info(step(8, "Testing connection") + " skipped (use --connect)")
	} else {
		reply, err := app.service.TestConnection(cmd.Context())
		if err != nil {
			log.Error(step(8, "Testing connection")+" ❌ "+reply.Error, zap.String("kind", string(reply.Kind)))
			connectErr = err
			allChecks = false
		} else {
			log.Info(fmt.Sprintf("%s ✅ %s (%s, %s)", step(8, "Testing connection"), strings.TrimSpace(reply.Text), reply.Provider, reply.Model))
		}
	}

	log.Info("")
	if allChecks {
		log.Info("✅ All checks passed! Your " + config.AppName + " installation is healthy.")
	} else {
		log.Warn("⚠️  Some checks failed. Review the output above for details.")
	}
	log.Info("=== End Diagnostics ===")
	return connectErr
}

var doctorInitForce bool

var doctorInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Long: `Write the built-in defaults to the user config file.

With --api-key the key is stored as the default provider's credential and the
file is created with mode 0600. --api-key prompt asks for it on stdin.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := cfgFile
		if configPath == "" {
			configPath = config.DefaultConfigPath()
		}
		if configPath == "" {
			return fmt.Errorf("config path not resolved")
		}
		if _, err := os.Stat(configPath); err == nil && !doctorInitForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", configPath)
		}

		key := strings.TrimSpace(apiKey)
		if strings.EqualFold(key, "prompt") {
			entered, err := promptForValue(cmd.OutOrStdout(), cmd.InOrStdin(), "Enter API key for the default provider (leave blank to skip): ")
			if err != nil {
				return err
			}
			key = entered
		}

		data, err := initConfigYAML(key)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
		mode := os.FileMode(0o644)
		if key != "" {
			mode = 0o600
		}
		if err := os.WriteFile(configPath, data, mode); err != nil {
			return fmt.Errorf("write config file: %w", err)
		}

		observability.CLILogger.Info("Config initialized", zap.String("path", configPath))
		return nil
	},
}

var doctorConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show configuration paths and provider status",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := observability.CLILogger
		configPath := config.DefaultConfigPath()

		log.Info("Configuration:")
		log.Info(fmt.Sprintf("  Config file:    %s (%s)", configPath, existenceStatus(fileExists(configPath))))
		if used := strings.TrimSpace(viper.ConfigFileUsed()); used != "" && used != configPath {
			log.Info("  Loaded from:    " + used)
		}
		if dataDir := config.DefaultDataDir(); dataDir != "" {
			log.Info(fmt.Sprintf("  Data directory: %s (%s)", dataDir, existenceStatus(fileExists(dataDir))))
		}

		cfg, err := config.Load(nil)
		if err != nil {
			log.Warn("Config load failed", zap.Error(err))
			return err
		}

		log.Info("")
		log.Info("Environment:")
		log.Info("  GOOGLE_API_KEY: " + envStatus("GOOGLE_API_KEY"))
		log.Info("  " + server.AdminTokenEnv + ": " + envStatus(server.AdminTokenEnv))

		log.Info("")
		log.Info("Effective Settings:")
		log.Info(fmt.Sprintf("  server:    %s:%d", cfg.Server.Host, cfg.Server.Port))
		log.Info(fmt.Sprintf("  admission: %d per %s (acquire timeout %s)", cfg.Admission.MaxRequests, cfg.Admission.Window, cfg.Admission.AcquireTimeout))
		log.Info(fmt.Sprintf("  retry:     %d attempts, base %s, offset %s", cfg.Retry.MaxAttempts, cfg.Retry.BaseDelay, cfg.Retry.Offset))

		app, err := wire(cfg, log)
		if err != nil {
			return err
		}
		rendered, err := (&output.TableFormatter{}).FormatProviders(app.providers.Statuses())
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
		return err
	},
}

var doctorValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the current config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := viper.ConfigFileUsed()
		if configPath == "" {
			return fmt.Errorf("no config file found (run '%s doctor init')", config.AppName)
		}
		if _, err := config.Load(nil); err != nil {
			return err
		}
		observability.CLILogger.Info("Config is valid", zap.String("path", configPath))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.AddCommand(doctorInitCmd)
	doctorCmd.AddCommand(doctorConfigCmd)
	doctorCmd.AddCommand(doctorValidateCmd)

	doctorCmd.Flags().BoolVar(&doctorConnect, "connect", false, "send the connection-test prompt to the provider")
	doctorInitCmd.Flags().BoolVar(&doctorInitForce, "force", false, "overwrite existing config file")
}

// initConfigYAML renders the built-in defaults as a nested YAML document. A
// non-empty key replaces the default provider's credentials.
func initConfigYAML(key string) ([]byte, error) {
	defaults := config.Defaults()
	tree := nest(defaults)

	if key != "" {
		providerID, _ := defaults["ailink.default_provider"].(string)
		providers, _ := defaults["ailink.providers"].(map[string]any)
		provider, ok := providers[providerID].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("default provider %q has no built-in definition", providerID)
		}
		withKey := make(map[string]any, len(provider))
		for k, v := range provider {
			withKey[k] = v
		}
		withKey["credentials"] = []any{
			map[string]any{"enabled": true, "label": "default", "api_key": key},
		}
		tree["ailink"].(map[string]any)["providers"] = map[string]any{providerID: withKey}
	}

	body, err := yaml.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	header := "# " + config.AppName + " config - created by '" + config.AppName + " doctor init'\n"
	return append([]byte(header), body...), nil
}

// nest expands dotted keys ("server.port") into nested maps.
func nest(flat map[string]any) map[string]any {
	root := make(map[string]any)
	for key, value := range flat {
		parts := strings.Split(key, ".")
		node := root
		for _, part := range parts[:len(parts)-1] {
			child, ok := node[part].(map[string]any)
			if !ok {
				child = make(map[string]any)
				node[part] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = value
	}
	return root
}

func promptForValue(w io.Writer, r io.Reader, prompt string) (string, error) {
	if _, err := fmt.Fprint(w, prompt); err != nil {
		return "", err
	}
	value, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(value), nil
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

func existenceStatus(exists bool) string {
	if exists {
		return "exists"
	}
	return "missing"
}

func envStatus(name string) string {
	if strings.TrimSpace(os.Getenv(name)) != "" {
		return "(set)"
	}
	return "(not set)"
}
