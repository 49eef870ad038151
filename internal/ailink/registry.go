package ailink

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/forgeiq/forgeiq/internal/ailink/driver"
	"github.com/forgeiq/forgeiq/internal/ailink/driver/anthropic"
	"github.com/forgeiq/forgeiq/internal/ailink/driver/gemini"
	"github.com/forgeiq/forgeiq/internal/ailink/driver/groq"
	"github.com/forgeiq/forgeiq/internal/ailink/driver/openai"
	"github.com/forgeiq/forgeiq/internal/ailink/prompt"
)

// ErrNoCredential is returned by Resolve when the selected provider has no
// usable API key.
var ErrNoCredential = errors.New("no credential configured")

// runtimeCredentialKey names the driver cache slot for keys set via SetCredential.
const runtimeCredentialKey = "runtime"

// Built-in model per provider type, used when neither the request, the
// prompt nor the provider config names one.
var defaultModels = map[string]string{
	gemini.Name:    "gemini-1.5-flash",
	openai.Name:    "gpt-4o-mini",
	anthropic.Name: "claude-3-5-haiku-latest",
	groq.Name:      "llama-3.1-8b-instant",
}

// DriverFactory builds a driver for a provider instance and API key.
type DriverFactory func(providerType string, cfg ProviderInstanceConfig, apiKey string, cfgAll Config) (driver.Driver, error)

// Registry resolves roles to provider instances, credentials and drivers.
type Registry struct {
	cfg Config

	// Getenv resolves api_key_env references. Defaults to os.Getenv.
	Getenv func(string) string
	// Factory builds drivers. Defaults to NewDriver.
	Factory DriverFactory

	mu          sync.Mutex
	drivers     map[string]driver.Driver
	rr          map[string]int
	runtimeKeys map[string]string
}

// ResolvedProvider is the outcome of routing one request.
type ResolvedProvider struct {
	ProviderID string
	Provider   ProviderInstanceConfig
	Credential CredentialConfig
	Driver     driver.Driver
	Model      string
}

// ProviderStatus summarizes a provider instance for diagnostics.
type ProviderStatus struct {
	ID         string `json:"id"`
	AIProvider string `json:"ai_provider"`
	Enabled    bool   `json:"enabled"`
	Configured bool   `json:"configured"`
	Model      string `json:"model"`
}

func NewRegistry(cfg Config) *Registry {
	return &Registry{cfg: cfg}
}

// Config returns the registry configuration.
func (r *Registry) Config() Config {
	if r == nil {
		return Config{}
	}
	return r.cfg
}

func (r *Registry) Resolve(role string, promptDef *prompt.Prompt, modelOverride string) (*ResolvedProvider, error) {
	providerID, providerCfg, err := r.resolveProvider(role)
	if err != nil {
		return nil, err
	}

	cred, credKey, apiKey := r.credentialFor(providerID, providerCfg)
	if apiKey == "" {
		return nil, fmt.Errorf("provider %q: %w", providerID, ErrNoCredential)
	}

	drv, err := r.driverFor(providerID, providerCfg, apiKey, credKey)
	if err != nil {
		return nil, err
	}

	return &ResolvedProvider{
		ProviderID: providerID,
		Provider:   providerCfg,
		Credential: cred,
		Driver:     drv,
		Model:      resolveModel(providerCfg, promptDef, modelOverride),
	}, nil
}

// Configured reports whether role resolves to a provider with a usable credential.
func (r *Registry) Configured(role string) bool {
	providerID, providerCfg, err := r.resolveProvider(role)
	if err != nil {
		return false
	}
	_, _, key := r.peekCredential(providerID, providerCfg)
	return key != ""
}

// SetCredential supplies an API key for a provider at runtime. It is kept in
// memory only. An empty providerID targets the default provider.
func (r *Registry) SetCredential(providerID, apiKey string) error {
	if r == nil {
		return fmt.Errorf("ailink registry not configured")
	}
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return fmt.Errorf("api key is required")
	}

	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		id, _, err := r.resolveProvider("")
		if err != nil {
			return err
		}
		providerID = id
	}
	if _, ok := r.cfg.Providers[providerID]; !ok {
		return fmt.Errorf("unknown provider %q", providerID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.runtimeKeys == nil {
		r.runtimeKeys = map[string]string{}
	}
	r.runtimeKeys[providerID] = apiKey
	delete(r.drivers, providerID+":"+runtimeCredentialKey)
	return nil
}

// Statuses lists every provider instance, sorted by id.
func (r *Registry) Statuses() []ProviderStatus {
	if r == nil {
		return nil
	}
	ids := make([]string, 0, len(r.cfg.Providers))
	for id := range r.cfg.Providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]ProviderStatus, 0, len(ids))
	for _, id := range ids {
		cfg := r.cfg.Providers[id]
		_, _, key := r.peekCredential(id, cfg)
		out = append(out, ProviderStatus{
			ID:         id,
			AIProvider: strings.ToLower(strings.TrimSpace(cfg.AIProvider)),
			Enabled:    cfg.Enabled,
			Configured: cfg.Enabled && key != "",
			Model:      resolveModel(cfg, nil, ""),
		})
	}
	return out
}

func (r *Registry) resolveProvider(role string) (string, ProviderInstanceConfig, error) {
	if r == nil {
		return "", ProviderInstanceConfig{}, fmt.Errorf("ailink registry not configured")
	}

	role = strings.TrimSpace(role)
	if role != "" {
		if providerID, ok := r.cfg.Routing[role]; ok {
			providerID = strings.TrimSpace(providerID)
			if providerID != "" {
				providerCfg, ok := r.cfg.Providers[providerID]
				if !ok {
					return "", ProviderInstanceConfig{}, fmt.Errorf("unknown provider %q for role %q", providerID, role)
				}
				if !providerCfg.Enabled {
					return "", ProviderInstanceConfig{}, fmt.Errorf("provider %q is disabled", providerID)
				}
				return providerID, providerCfg, nil
			}
		}

		ids := make([]string, 0, len(r.cfg.Providers))
		for providerID := range r.cfg.Providers {
			ids = append(ids, providerID)
		}
		sort.Strings(ids)
		for _, providerID := range ids {
			providerCfg := r.cfg.Providers[providerID]
			if providerCfg.Enabled && contains(providerCfg.Roles, role) {
				return providerID, providerCfg, nil
			}
		}
	}

	if id := strings.TrimSpace(r.cfg.DefaultProvider); id != "" {
		providerCfg, ok := r.cfg.Providers[id]
		if !ok {
			return "", ProviderInstanceConfig{}, fmt.Errorf("default provider %q not configured", id)
		}
		if !providerCfg.Enabled {
			return "", ProviderInstanceConfig{}, fmt.Errorf("default provider %q is disabled", id)
		}
		return id, providerCfg, nil
	}

	var onlyID string
	var onlyCfg ProviderInstanceConfig
	for providerID, providerCfg := range r.cfg.Providers {
		if !providerCfg.Enabled {
			continue
		}
		if onlyID != "" {
			return "", ProviderInstanceConfig{}, fmt.Errorf("no provider routing configured")
		}
		onlyID = providerID
		onlyCfg = providerCfg
	}
	if onlyID == "" {
		return "", ProviderInstanceConfig{}, fmt.Errorf("no enabled providers configured")
	}
	return onlyID, onlyCfg, nil
}

// credentialFor picks the credential for one call. Runtime keys win over
// configured ones; round-robin state advances.
func (r *Registry) credentialFor(providerID string, cfg ProviderInstanceConfig) (CredentialConfig, string, string) {
	return r.credential(providerID, cfg, true)
}

// peekCredential is credentialFor without advancing round-robin state.
func (r *Registry) peekCredential(providerID string, cfg ProviderInstanceConfig) (CredentialConfig, string, string) {
	return r.credential(providerID, cfg, false)
}

func (r *Registry) credential(providerID string, cfg ProviderInstanceConfig, advance bool) (CredentialConfig, string, string) {
	r.mu.Lock()
	key := r.runtimeKeys[providerID]
	r.mu.Unlock()
	if key != "" {
		return CredentialConfig{Enabled: true, Label: runtimeCredentialKey}, runtimeCredentialKey, key
	}

	rrNext := func(groupKey string, n int) int {
		if !advance {
			return 0
		}
		return r.rrIndex(providerID+":"+groupKey, n)
	}
	cred, credKey, ok := selectCredential(cfg, r.lookupKey, rrNext)
	if !ok {
		return cred, credKey, ""
	}
	return cred, credKey, r.lookupKey(cred)
}

func (r *Registry) lookupKey(cred CredentialConfig) string {
	if key := strings.TrimSpace(cred.APIKey); key != "" {
		return key
	}
	name := strings.TrimSpace(cred.APIKeyEnv)
	if name == "" {
		return ""
	}
	getenv := r.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	return strings.TrimSpace(getenv(name))
}

func selectCredential(cfg ProviderInstanceConfig, keyOf func(CredentialConfig) string, rrNext func(groupKey string, n int) int) (CredentialConfig, string, bool) {
	enabled := make([]CredentialConfig, 0, len(cfg.Credentials))
	for _, cred := range cfg.Credentials {
		if !cred.Enabled && strings.TrimSpace(cred.Label) != "" {
			continue
		}
		if keyOf(cred) == "" {
			continue
		}
		enabled = append(enabled, cred)
	}
	if len(enabled) == 0 {
		return CredentialConfig{}, "", false
	}

	if label := strings.TrimSpace(cfg.DefaultCredential); label != "" {
		for _, cred := range enabled {
			if strings.EqualFold(strings.TrimSpace(cred.Label), label) {
				return cred, strings.TrimSpace(cred.Label), true
			}
		}
	}

	highest := enabled[0].Priority
	for _, cred := range enabled[1:] {
		if cred.Priority > highest {
			highest = cred.Priority
		}
	}
	group := make([]CredentialConfig, 0, len(enabled))
	for _, cred := range enabled {
		if cred.Priority == highest {
			group = append(group, cred)
		}
	}

	idx := 0
	if strings.EqualFold(strings.TrimSpace(cfg.SelectionPolicy), "round_robin") && rrNext != nil {
		idx = rrNext(fmt.Sprintf("%d", highest), len(group))
	}
	cred := group[idx]
	key := strings.TrimSpace(cred.Label)
	if key == "" {
		key = fmt.Sprintf("p%d-%d", highest, idx)
	}
	return cred, key, true
}

func (r *Registry) driverFor(providerID string, providerCfg ProviderInstanceConfig, apiKey, credKey string) (driver.Driver, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.drivers == nil {
		r.drivers = map[string]driver.Driver{}
	}
	driverKey := providerID + ":" + credKey
	if drv, ok := r.drivers[driverKey]; ok {
		return drv, nil
	}

	factory := r.Factory
	if factory == nil {
		factory = NewDriver
	}
	providerType := strings.ToLower(strings.TrimSpace(providerCfg.AIProvider))
	drv, err := factory(providerType, providerCfg, apiKey, r.cfg)
	if err != nil {
		return nil, fmt.Errorf("provider %q: %w", providerID, err)
	}
	r.drivers[driverKey] = drv
	return drv, nil
}

// NewDriver builds the driver for an ai_provider type.
func NewDriver(providerType string, providerCfg ProviderInstanceConfig, apiKey string, cfg Config) (driver.Driver, error) {
	switch providerType {
	case gemini.Name:
		client := gemini.NewClient(providerCfg.BaseURL, apiKey)
		client.Timeout = cfg.DefaultTimeout
		return client, nil
	case openai.Name:
		client := openai.NewClient(providerCfg.BaseURL, apiKey)
		client.Timeout = cfg.DefaultTimeout
		return client, nil
	case anthropic.Name:
		client := anthropic.NewClient(providerCfg.BaseURL, apiKey)
		client.Timeout = cfg.DefaultTimeout
		return client, nil
	case groq.Name:
		client := groq.NewClient(providerCfg.BaseURL, apiKey)
		client.Timeout = cfg.DefaultTimeout
		return client, nil
	case "":
		return nil, fmt.Errorf("ai_provider is not set")
	default:
		return nil, fmt.Errorf("unsupported ai_provider %q", providerType)
	}
}

func resolveModel(providerCfg ProviderInstanceConfig, promptDef *prompt.Prompt, override string) string {
	if model := strings.TrimSpace(override); model != "" {
		return model
	}
	if models := preferredModels(promptDef); len(models) > 0 {
		if model := strings.TrimSpace(models[0]); model != "" {
			return model
		}
	}
	if model := strings.TrimSpace(providerCfg.Models["default"]); model != "" {
		return model
	}
	return defaultModels[strings.ToLower(strings.TrimSpace(providerCfg.AIProvider))]
}

func preferredModels(promptDef *prompt.Prompt) []string {
	if promptDef == nil {
		return nil
	}

	value, ok := promptDef.Config.ProviderHints["preferred_models"]
	if !ok || value == nil {
		return nil
	}

	switch typed := value.(type) {
	case []string:
		return typed
	case []any:
		models := make([]string, 0, len(typed))
		for _, item := range typed {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				models = append(models, s)
			}
		}
		return models
	case string:
		if strings.TrimSpace(typed) == "" {
			return nil
		}
		return []string{typed}
	default:
		return nil
	}
}

func (r *Registry) rrIndex(key string, n int) int {
	if n <= 1 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rr == nil {
		r.rr = map[string]int{}
	}
	idx := r.rr[key] % n
	r.rr[key] = r.rr[key] + 1
	return idx
}

func contains(values []string, needle string) bool {
	needle = strings.TrimSpace(needle)
	if needle == "" {
		return false
	}
	for _, v := range values {
		if strings.EqualFold(strings.TrimSpace(v), needle) {
			return true
		}
	}
	return false
}
