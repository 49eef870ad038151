package ailink

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeiq/forgeiq/internal/ailink/driver"
	"github.com/forgeiq/forgeiq/internal/ailink/prompt"
)

func TestResolveModelPrecedence(t *testing.T) {
	providerCfg := ProviderInstanceConfig{AIProvider: "gemini", Models: map[string]string{"default": "m-default"}}
	promptDef := &prompt.Prompt{Config: prompt.Config{ProviderHints: map[string]any{"preferred_models": []any{"prompt-model"}}}}

	assert.Equal(t, "override", resolveModel(providerCfg, promptDef, "override"))
	assert.Equal(t, "prompt-model", resolveModel(providerCfg, promptDef, ""))
	assert.Equal(t, "m-default", resolveModel(providerCfg, nil, ""))
	assert.Equal(t, defaultModels["gemini"], resolveModel(ProviderInstanceConfig{AIProvider: "Gemini"}, nil, ""))
}

func TestResolveRoutesByRoleThenDefault(t *testing.T) {
	cfg := Config{
		DefaultProvider: "fallback",
		Routing:         map[string]string{"strategic-plan": "planner"},
		Providers: map[string]ProviderInstanceConfig{
			"planner":  {Enabled: true, AIProvider: "anthropic", Credentials: []CredentialConfig{{APIKey: "a"}}},
			"chatty":   {Enabled: true, AIProvider: "groq", Roles: []string{"assistant-chat"}, Credentials: []CredentialConfig{{APIKey: "g"}}},
			"fallback": {Enabled: true, AIProvider: "gemini", Credentials: []CredentialConfig{{APIKey: "f"}}},
		},
	}
	reg := registryWith(cfg, &scriptedDriver{steps: []step{{text: "x"}}})

	for role, want := range map[string]string{
		"strategic-plan": "planner",
		"assistant-chat": "chatty",
		"other":          "fallback",
		"":               "fallback",
	} {
		resolved, err := reg.Resolve(role, nil, "")
		require.NoError(t, err, role)
		assert.Equal(t, want, resolved.ProviderID, role)
	}
}

func TestResolveReadsKeyFromEnvironment(t *testing.T) {
	var gotKey string
	reg := NewRegistry(providerConfig(CredentialConfig{Enabled: true, Label: "env", APIKeyEnv: "GOOGLE_API_KEY"}))
	reg.Getenv = func(name string) string {
		if name == "GOOGLE_API_KEY" {
			return " from-env "
		}
		return ""
	}
	reg.Factory = func(_ string, _ ProviderInstanceConfig, apiKey string, _ Config) (driver.Driver, error) {
		gotKey = apiKey
		return &scriptedDriver{}, nil
	}

	_, err := reg.Resolve("", nil, "")
	require.NoError(t, err)
	assert.Equal(t, "from-env", gotKey)
}

func TestSelectCredentialRoundRobinWithinHighestPriority(t *testing.T) {
	cfg := providerConfig(
		CredentialConfig{Enabled: true, Label: "a", APIKey: "ka", Priority: 10},
		CredentialConfig{Enabled: true, Label: "b", APIKey: "kb", Priority: 10},
		CredentialConfig{Enabled: true, Label: "low", APIKey: "kl", Priority: 1},
		CredentialConfig{Enabled: false, Label: "off", APIKey: "ko", Priority: 99},
	)
	primary := cfg.Providers["primary"]
	primary.SelectionPolicy = "round_robin"
	cfg.Providers["primary"] = primary

	var keys []string
	reg := NewRegistry(cfg)
	reg.Factory = func(_ string, _ ProviderInstanceConfig, apiKey string, _ Config) (driver.Driver, error) {
		keys = append(keys, apiKey)
		return &scriptedDriver{}, nil
	}

	labels := make([]string, 0, 4)
	for i := 0; i < 4; i++ {
		resolved, err := reg.Resolve("", nil, "")
		require.NoError(t, err)
		labels = append(labels, resolved.Credential.Label)
	}
	assert.Equal(t, []string{"a", "b", "a", "b"}, labels)
	assert.Equal(t, []string{"ka", "kb"}, keys, "drivers are cached per credential")
}

func TestSetCredentialRejectsUnknownProvider(t *testing.T) {
	reg := registryWith(providerConfig(), &scriptedDriver{})
	require.Error(t, reg.SetCredential("nope", "k"))
	require.Error(t, reg.SetCredential("primary", " "))
}

func TestStatusesReportConfiguredState(t *testing.T) {
	cfg := providerConfig()
	cfg.Providers["spare"] = ProviderInstanceConfig{Enabled: true, AIProvider: "openai"}
	reg := registryWith(cfg, &scriptedDriver{})

	statuses := reg.Statuses()
	require.Len(t, statuses, 2)
	assert.Equal(t, "primary", statuses[0].ID)
	assert.True(t, statuses[0].Configured)
	assert.Equal(t, "spare", statuses[1].ID)
	assert.False(t, statuses[1].Configured)
	assert.Equal(t, defaultModels["openai"], statuses[1].Model)
}

func TestNewDriverRejectsUnknownProvider(t *testing.T) {
	_, err := NewDriver("xai", ProviderInstanceConfig{}, "k", Config{})
	require.Error(t, err)

	drv, err := NewDriver("groq", ProviderInstanceConfig{}, "k", Config{})
	require.NoError(t, err)
	assert.Equal(t, "groq", drv.Name())
}
