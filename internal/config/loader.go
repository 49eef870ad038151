// Package config provides centralized configuration management for forgeiq.
// Defaults are registered on a viper instance, the config file is read
// through viper, FORGEIQ_* variables are applied with gofulmen/config, and the
// merged tree is decoded with mapstructure.
package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/fulmenhq/gofulmen/schema"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	// AppName names the XDG config, data and cache directories.
	AppName = "forgeiq"
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "FORGEIQ_"
)

var (
	// appConfig holds the current application configuration
	appConfig *Config
	configMu  sync.RWMutex
)

// EnvVarSpec defines environment variable mappings for config fields
// following the pattern: {PREFIX}{NAME} maps to config path
type EnvVarSpec = gfconfig.EnvVarSpec

// Environment variable types
const (
	EnvString = gfconfig.EnvString
	EnvInt    = gfconfig.EnvInt
	EnvBool   = gfconfig.EnvBool
)

// Defaults returns the built-in configuration as a flat key map.
func Defaults() map[string]any {
	return map[string]any{
		"server.host":             "localhost",
		"server.port":             8080,
		"server.read_timeout":     "30s",
		"server.write_timeout":    "300s",
		"server.idle_timeout":     "120s",
		"server.shutdown_timeout": "10s",

		"logging.level":   "info",
		"logging.profile": "STRUCTURED",

		"metrics.enabled": true,
		"metrics.port":    9090,
		"health.enabled":  true,
		"debug.enabled":   false,

		"admission.max_requests":    25,
		"admission.window":          "60s",
		"admission.acquire_timeout": "120s",

		"retry.max_attempts": 5,
		"retry.base_delay":   "2s",
		"retry.offset":       "5s",

		"ailink.default_provider": "gemini",
		"ailink.default_timeout":  "60s",
		"ailink.prompts_dir":      "",
		"ailink.trace_file":       "",
		"ailink.providers": map[string]any{
			"gemini": map[string]any{
				"enabled":     true,
				"ai_provider": "gemini",
				"credentials": []any{
					map[string]any{"enabled": true, "label": "env", "api_key_env": "GOOGLE_API_KEY"},
				},
			},
		},
	}
}

// SetDefaults registers Defaults on v.
func SetDefaults(v *viper.Viper) {
	for key, value := range Defaults() {
		v.SetDefault(key, value)
	}
}

// Load decodes the configuration held by v (defaults, file) and layers
// environment and runtime overrides on top. A nil v uses the global viper.
//
// Safe to call repeatedly (e.g. on SIGHUP reload).
func Load(v *viper.Viper, runtimeOverrides ...map[string]any) (*Config, error) {
	if v == nil {
		v = viper.GetViper()
	}
	SetDefaults(v)

	merged := v.AllSettings()

	envOverrides, err := gfconfig.LoadEnvOverrides(getEnvSpecs())
	if err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}
	applyAILinkDynamicEnvOverrides(EnvPrefix, os.Environ(), envOverrides)

	mergeInto(merged, envOverrides)
	for _, overrides := range runtimeOverrides {
		mergeInto(merged, overrides)
	}

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(merged); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	setConfig(cfg)
	return cfg, nil
}

//go:embed schemas/config.schema.json
var configSchema []byte

var (
	configValidatorOnce sync.Once
	configValidator     *schema.Validator
	configValidatorErr  error
)

// validate checks the decoded config against the embedded config schema.
// Durations are presented in seconds so the schema can bound them.
func validate(cfg *Config) error {
	configValidatorOnce.Do(func() {
		configValidator, configValidatorErr = schema.NewValidator(configSchema)
	})
	if configValidatorErr != nil {
		return fmt.Errorf("failed to load config schema: %w", configValidatorErr)
	}

	payload, err := json.Marshal(schemaView(cfg))
	if err != nil {
		return fmt.Errorf("failed to marshal config for validation: %w", err)
	}
	diagnostics, err := configValidator.ValidateJSON(payload)
	if err != nil {
		return fmt.Errorf("failed to validate config: %w", err)
	}
	for _, diag := range diagnostics {
		if diag.Keyword == "" {
			continue
		}
		return fmt.Errorf("config validation failed: %s: %s", diag.Pointer, diag.Message)
	}
	if len(diagnostics) > 0 {
		return fmt.Errorf("config validation failed: %s", diagnostics[0].Message)
	}
	return nil
}

func schemaView(cfg *Config) map[string]any {
	return map[string]any{
		"server": map[string]any{
			"port":                     cfg.Server.Port,
			"read_timeout_seconds":     cfg.Server.ReadTimeout.Seconds(),
			"write_timeout_seconds":    cfg.Server.WriteTimeout.Seconds(),
			"idle_timeout_seconds":     cfg.Server.IdleTimeout.Seconds(),
			"shutdown_timeout_seconds": cfg.Server.ShutdownTimeout.Seconds(),
		},
		"logging": map[string]any{
			"level":   cfg.Logging.Level,
			"profile": cfg.Logging.Profile,
		},
		"metrics": map[string]any{
			"port": cfg.Metrics.Port,
		},
		"admission": map[string]any{
			"max_requests":            cfg.Admission.MaxRequests,
			"window_seconds":          cfg.Admission.Window.Seconds(),
			"acquire_timeout_seconds": cfg.Admission.AcquireTimeout.Seconds(),
		},
		"retry": map[string]any{
			"max_attempts":       cfg.Retry.MaxAttempts,
			"base_delay_seconds": cfg.Retry.BaseDelay.Seconds(),
			"offset_seconds":     cfg.Retry.Offset.Seconds(),
		},
	}
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// getEnvSpecs maps FORGEIQ_* variables to config paths. Duration fields are
// read as strings and converted by the decode hook.
func getEnvSpecs() []EnvVarSpec {
	prefix := EnvPrefix
	return []EnvVarSpec{
		{Name: prefix + "HOST", Path: []string{"server", "host"}, Type: EnvString},
		{Name: prefix + "PORT", Path: []string{"server", "port"}, Type: EnvInt},
		{Name: prefix + "READ_TIMEOUT", Path: []string{"server", "read_timeout"}, Type: EnvString},
		{Name: prefix + "WRITE_TIMEOUT", Path: []string{"server", "write_timeout"}, Type: EnvString},
		{Name: prefix + "IDLE_TIMEOUT", Path: []string{"server", "idle_timeout"}, Type: EnvString},
		{Name: prefix + "SHUTDOWN_TIMEOUT", Path: []string{"server", "shutdown_timeout"}, Type: EnvString},

		{Name: prefix + "LOG_LEVEL", Path: []string{"logging", "level"}, Type: EnvString},
		{Name: prefix + "LOG_PROFILE", Path: []string{"logging", "profile"}, Type: EnvString},

		{Name: prefix + "METRICS_ENABLED", Path: []string{"metrics", "enabled"}, Type: EnvBool},
		{Name: prefix + "METRICS_PORT", Path: []string{"metrics", "port"}, Type: EnvInt},
		{Name: prefix + "HEALTH_ENABLED", Path: []string{"health", "enabled"}, Type: EnvBool},
		{Name: prefix + "DEBUG_ENABLED", Path: []string{"debug", "enabled"}, Type: EnvBool},

		{Name: prefix + "ADMISSION_MAX_REQUESTS", Path: []string{"admission", "max_requests"}, Type: EnvInt},
		{Name: prefix + "ADMISSION_WINDOW", Path: []string{"admission", "window"}, Type: EnvString},
		{Name: prefix + "ADMISSION_ACQUIRE_TIMEOUT", Path: []string{"admission", "acquire_timeout"}, Type: EnvString},

		{Name: prefix + "RETRY_MAX_ATTEMPTS", Path: []string{"retry", "max_attempts"}, Type: EnvInt},
		{Name: prefix + "RETRY_BASE_DELAY", Path: []string{"retry", "base_delay"}, Type: EnvString},
		{Name: prefix + "RETRY_OFFSET", Path: []string{"retry", "offset"}, Type: EnvString},

		{Name: prefix + "AILINK_DEFAULT_PROVIDER", Path: []string{"ailink", "default_provider"}, Type: EnvString},
		{Name: prefix + "AILINK_DEFAULT_TIMEOUT", Path: []string{"ailink", "default_timeout"}, Type: EnvString},
		{Name: prefix + "AILINK_PROMPTS_DIR", Path: []string{"ailink", "prompts_dir"}, Type: EnvString},
		{Name: prefix + "AILINK_TRACE_FILE", Path: []string{"ailink", "trace_file"}, Type: EnvString},
	}
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configDir := gfconfig.GetAppConfigDir(AppName)
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultConfigDir returns the XDG config directory, or "" when it cannot be resolved.
func DefaultConfigDir() string {
	return gfconfig.GetAppConfigDir(AppName)
}

// DefaultDataDir returns the XDG-compliant data directory for the app.
func DefaultDataDir() string {
	return gfconfig.GetAppDataDir(AppName)
}

// applyAILinkDynamicEnvOverrides maps provider and routing variables that
// cannot be listed statically, e.g.
//
//	FORGEIQ_AILINK_PROVIDERS_BACKUP_AI_PROVIDER=openai
//	FORGEIQ_AILINK_PROVIDERS_BACKUP_CREDENTIALS_0_API_KEY_ENV=OPENAI_API_KEY
//	FORGEIQ_AILINK_ROUTING_STRATEGIC_PLAN=backup
func applyAILinkDynamicEnvOverrides(prefix string, environ []string, envOverrides map[string]any) {
	providerPrefix := prefix + "AILINK_PROVIDERS_"
	routingPrefix := prefix + "AILINK_ROUTING_"

	for _, item := range environ {
		key, value, ok := strings.Cut(item, "=")
		if !ok || strings.TrimSpace(value) == "" {
			continue
		}

		switch {
		case strings.HasPrefix(key, providerPrefix):
			applyAILinkProviderOverride(envOverrides, key[len(providerPrefix):], value)
		case strings.HasPrefix(key, routingPrefix):
			applyAILinkRoutingOverride(envOverrides, key[len(routingPrefix):], value)
		}
	}
}

func applyAILinkRoutingOverride(envOverrides map[string]any, rawRole string, providerID string) {
	role := toSlug(rawRole)
	providerID = strings.ToLower(strings.TrimSpace(providerID))
	if role == "" || providerID == "" {
		return
	}

	ailink := ensureMap(envOverrides, "ailink")
	routing := ensureMap(ailink, "routing")
	routing[role] = providerID
}

func applyAILinkProviderOverride(envOverrides map[string]any, raw string, value string) {
	parts := strings.Split(strings.TrimSpace(raw), "_")
	if len(parts) < 2 {
		return
	}

	section := -1
	for i, part := range parts {
		switch part {
		case "ENABLED", "AI", "BASE", "MODELS", "CREDENTIALS", "SELECTION", "DEFAULT", "ROLES":
			section = i
		}
		if section != -1 {
			break
		}
	}
	if section <= 0 {
		return
	}

	providerID := strings.ToLower(strings.Join(parts[:section], "-"))
	ailink := ensureMap(envOverrides, "ailink")
	providers := ensureMap(ailink, "providers")
	provider := ensureMap(providers, providerID)

	value = strings.TrimSpace(value)
	rest := parts[section:]
	switch {
	case len(rest) == 1 && rest[0] == "ENABLED":
		provider["enabled"] = strings.EqualFold(value, "true")
	case len(rest) == 1 && rest[0] == "ROLES":
		provider["roles"] = splitList(value)
	case len(rest) == 2 && rest[0] == "AI" && rest[1] == "PROVIDER":
		provider["ai_provider"] = strings.ToLower(value)
	case len(rest) == 2 && rest[0] == "DEFAULT" && rest[1] == "CREDENTIAL":
		provider["default_credential"] = value
	case len(rest) == 2 && rest[0] == "SELECTION" && rest[1] == "POLICY":
		provider["selection_policy"] = strings.ToLower(value)
	case len(rest) == 2 && rest[0] == "BASE" && rest[1] == "URL":
		provider["base_url"] = value
	case len(rest) >= 2 && rest[0] == "MODELS":
		models := ensureMap(provider, "models")
		models[strings.ToLower(strings.Join(rest[1:], "_"))] = value
	case len(rest) >= 3 && rest[0] == "CREDENTIALS":
		idx, err := strconv.Atoi(rest[1])
		if err != nil || idx < 0 {
			return
		}
		field := strings.ToLower(strings.Join(rest[2:], "_"))

		creds := ensureSlice(provider, "credentials", idx+1)
		cred := ensureSliceMap(creds, idx)
		switch field {
		case "priority":
			if parsed, err := strconv.Atoi(value); err == nil {
				cred[field] = parsed
			}
		case "enabled":
			cred[field] = strings.EqualFold(value, "true")
		default:
			cred[field] = value
		}
	}
}

// mergeInto deep-merges src into dst. Nested maps merge; every other value replaces.
func mergeInto(dst, src map[string]any) {
	for key, value := range src {
		if srcMap, ok := asMap(value); ok {
			if dstMap, ok := asMap(dst[key]); ok {
				mergeInto(dstMap, srcMap)
				dst[key] = dstMap
				continue
			}
		}
		dst[key] = value
	}
}

func asMap(value any) (map[string]any, bool) {
	switch typed := value.(type) {
	case map[string]any:
		return typed, true
	case map[string]string:
		out := make(map[string]any, len(typed))
		for k, v := range typed {
			out[k] = v
		}
		return out, true
	default:
		return nil, false
	}
}

func ensureMap(parent map[string]any, key string) map[string]any {
	if existing, ok := parent[key].(map[string]any); ok {
		return existing
	}
	next := map[string]any{}
	parent[key] = next
	return next
}

func ensureSlice(parent map[string]any, key string, length int) []any {
	existing, _ := parent[key].([]any)
	for len(existing) < length {
		existing = append(existing, map[string]any{})
	}
	parent[key] = existing
	return existing
}

func ensureSliceMap(slice []any, idx int) map[string]any {
	if typed, ok := slice[idx].(map[string]any); ok {
		return typed
	}
	m := map[string]any{}
	slice[idx] = m
	return m
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func toSlug(raw string) string {
	parts := strings.Split(strings.TrimSpace(raw), "_")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			clean = append(clean, p)
		}
	}
	return strings.Join(clean, "-")
}
