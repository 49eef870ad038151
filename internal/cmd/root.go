package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/forgeiq/forgeiq/internal/ailink/driver"
	"github.com/forgeiq/forgeiq/internal/config"
	"github.com/forgeiq/forgeiq/internal/observability"
)

var (
	cfgFile   string
	verbose   bool
	traceFile string

	// Version info set by main package
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}

	stopTracing func()
)

// SetVersionInfo is called by main package to set version information
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var rootCmd = &cobra.Command{
	Use:   config.AppName,
	Short: "Rate-limited AI decision support for manufacturing teams",
	Long: `forgeiq runs business-analysis prompts (requirements, process optimization,
strategic plans, executive reports, decision support and chat) against a
configured model provider. Every call passes a process-wide sliding-window
admission controller and a bounded retry loop.

Use the subcommands to run prompts locally or start the HTTP service.`,
	SilenceUsage: true,
}

// Execute runs the root command. It is called once by main.
func Execute() error {
	defer func() {
		if stopTracing != nil {
			stopTracing()
			stopTracing = nil
		}
	}()
	return rootCmd.Execute()
}

func init() {
	observability.DisableTelemetry()

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/"+config.AppName+"/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")
	rootCmd.PersistentFlags().StringVar(&traceFile, "trace", "", "trace provider requests/responses to an NDJSON file")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig points viper at the config file. Decoding happens per command
// through config.Load.
func initConfig() {
	observability.InitCLILogger(config.AppName, verbose)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		if dir := config.DefaultConfigDir(); dir != "" {
			viper.AddConfigPath(dir)
		} else if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath("./config")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err == nil {
		observability.CLILogger.Debug("Using config file", zap.String("path", viper.ConfigFileUsed()))
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		observability.CLILogger.Debug("No config file found, using defaults and environment variables")
	} else {
		observability.CLILogger.Warn("Error reading config file", zap.Error(err))
	}

	config.SetDefaults(viper.GetViper())
}

// enableTracing starts provider tracing from --trace, falling back to
// ailink.trace_file.
func enableTracing(cfg *config.Config) {
	path := traceFile
	if path == "" && cfg != nil {
		path = cfg.AILink.TraceFile
	}
	if path == "" || stopTracing != nil {
		return
	}
	cleanup, err := driver.EnableTracing(path)
	if err != nil {
		observability.Logger().Warn("Failed to enable tracing", zap.Error(err))
		return
	}
	stopTracing = cleanup
	observability.Logger().Debug("Provider tracing enabled", zap.String("file", path))
}
