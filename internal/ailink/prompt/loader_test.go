package prompt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	prompts, err := LoadDefaults()
	require.NoError(t, err)

	reg, err := NewRegistry(prompts)
	require.NoError(t, err)

	for slug, key := range map[string]string{
		"requirements-analysis": "analysis",
		"process-optimization":  "optimization",
		"strategic-plan":        "plan",
		"executive-report":      "report",
		"decision-analysis":     "analysis",
		"assistant-chat":        "response",
		"connection-test":       "response",
	} {
		p, err := reg.Get(slug)
		require.NoError(t, err, slug)
		assert.Equal(t, key, p.ResultKey(), slug)
		assert.NotEmpty(t, p.Config.SystemTemplate, slug)
		assert.NotEmpty(t, p.Config.UserTemplate, slug)
	}

	decision, err := reg.Get("decision-analysis")
	require.NoError(t, err)
	assert.Equal(t, "- Option {{index}}: {{item}}", decision.Config.Input.Lists["options"])

	ping, err := reg.Get("connection-test")
	require.NoError(t, err)
	require.NotNil(t, ping.Config.Generation.MaxTokens)
	assert.Equal(t, 50, *ping.Config.Generation.MaxTokens)
}

func TestLoadRejectsInvalidPrompts(t *testing.T) {
	cases := map[string]string{
		"bad slug":       "---\nslug: Bad Slug\nsystem_template: sys\n---\nbody",
		"no system":      "---\nslug: ok\n---\nbody",
		"no body":        "---\nslug: ok\nsystem_template: sys\n---\n",
		"list no item":   "---\nslug: ok\nsystem_template: sys\ninput:\n  lists:\n    options: \"- {{index}}\"\n---\nbody",
		"duplicate var":  "---\nslug: ok\nsystem_template: sys\ninput:\n  required_variables: [a]\n  optional_variables: [a]\n---\nbody",
		"bad max tokens": "---\nslug: ok\nsystem_template: sys\ngeneration:\n  max_tokens: 0\n---\nbody",
		"missing slug":   "---\nname: nameless\nsystem_template: sys\n---\nbody",
		"hot sampling":   "---\nslug: ok\nsystem_template: sys\ngeneration:\n  temperature: 2.5\n---\nbody",
		"spaced key":     "---\nslug: ok\nresult_key: two words\nsystem_template: sys\n---\nbody",
		"blank variable": "---\nslug: ok\nsystem_template: sys\ninput:\n  required_variables: [\"\"]\n---\nbody",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(name, []byte(doc))
			require.Error(t, err)
		})
	}
}

func TestLoadReportsSchemaPointer(t *testing.T) {
	_, err := Load("bad.md", []byte("---\nslug: Bad Slug\nsystem_template: sys\n---\nbody"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validate prompt bad.md")
	assert.Contains(t, err.Error(), "schema validation failed")
	assert.Contains(t, err.Error(), "/slug")

	p, err := Load("ok.md", []byte("---\nslug: shift-handover\nsystem_template: sys\ngeneration:\n  temperature: 0.2\n---\nSummarize {{notes}}"))
	require.NoError(t, err)
	assert.Equal(t, "Summarize {{notes}}", p.Config.UserTemplate)
}

func TestLoadRegistryOverlaysDirectory(t *testing.T) {
	dir := t.TempDir()
	override := "---\nslug: connection-test\nresult_key: reply\nsystem_template: custom\n---\nping\n"
	extra := "---\nslug: shift-handover\nsystem_template: sys\ninput:\n  required_variables: [notes]\n---\nSummarize {{notes}}\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "connection-test.md"), []byte(override), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shift-handover.md"), []byte(extra), 0o600))

	reg, err := LoadRegistry(dir)
	require.NoError(t, err)

	overridden, err := reg.Get("connection-test")
	require.NoError(t, err)
	assert.Equal(t, "reply", overridden.ResultKey())
	assert.Equal(t, "ping", overridden.Config.UserTemplate)

	_, err = reg.Get("shift-handover")
	require.NoError(t, err)
	assert.Len(t, reg.List(), 8)
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	p := &Prompt{Config: Config{Slug: "a"}}
	_, err := NewRegistry([]*Prompt{p, p})
	require.Error(t, err)
}
