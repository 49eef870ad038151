package cmd

import (
	"fmt"
	"strings"

	"github.com/fulmenhq/gofulmen/logging"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/forgeiq/forgeiq/internal/admission"
	"github.com/forgeiq/forgeiq/internal/ailink"
	"github.com/forgeiq/forgeiq/internal/ailink/prompt"
	"github.com/forgeiq/forgeiq/internal/config"
)

var apiKey string

// components is the process-wide object graph. There is exactly one admission
// controller per process; everything that calls a provider shares it.
type components struct {
	cfg       *config.Config
	admission *admission.Controller
	providers *ailink.Registry
	prompts   prompt.Registry
	service   *ailink.Service
}

// bootstrap loads configuration and wires the controller, provider registry,
// invoker and service.
func bootstrap(logger *logging.Logger) (*components, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return wire(cfg, logger)
}

func wire(cfg *config.Config, logger *logging.Logger) (*components, error) {
	enableTracing(cfg)

	ctrl, err := admission.New(cfg.Admission.Quota())
	if err != nil {
		return nil, fmt.Errorf("admission: %w", err)
	}

	providers := ailink.NewRegistry(cfg.AILink)
	if key := strings.TrimSpace(apiKey); key != "" && !strings.EqualFold(key, "prompt") {
		if err := providers.SetCredential("", key); err != nil {
			return nil, fmt.Errorf("--api-key: %w", err)
		}
	}

	prompts, err := prompt.LoadRegistry(strings.TrimSpace(cfg.AILink.PromptsDir))
	if err != nil {
		return nil, fmt.Errorf("loading prompts: %w", err)
	}

	invoker := &ailink.Invoker{
		Providers:        providers,
		Admission:        ctrl,
		Backoff:          cfg.Retry.Backoff(),
		MaxAttempts:      cfg.Retry.MaxAttempts,
		AdmissionTimeout: cfg.Admission.AcquireTimeout,
		Logger:           logger,
	}

	if logger != nil {
		quota := ctrl.Quota()
		logger.Debug("Components wired",
			zap.Int("max_requests", quota.MaxRequests),
			zap.Duration("window", quota.Window),
			zap.Int("max_attempts", invoker.MaxAttempts),
			zap.Int("prompts", len(prompts.List())),
			zap.Bool("provider_configured", providers.Configured("")))
	}

	return &components{
		cfg:       cfg,
		admission: ctrl,
		providers: providers,
		prompts:   prompts,
		service:   &ailink.Service{Invoker: invoker, Prompts: prompts},
	}, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key for the default provider (held in memory only)")
}
