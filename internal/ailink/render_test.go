package ailink

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeiq/forgeiq/internal/ailink/prompt"
)

func testPrompt() *prompt.Prompt {
	return &prompt.Prompt{Config: prompt.Config{
		Slug:           "decision-analysis",
		SystemTemplate: "Context: {{topic}}",
		UserTemplate:   "Decide {{decision_context}}\n{{#if budget}}Budget: {{budget}}{{else}}No budget.{{/if}}\nOptions:\n{{options}}",
		Input: prompt.InputSpec{
			RequiredVariables: []string{"decision_context"},
			OptionalVariables: []string{"budget", "topic"},
			Lists:             map[string]string{"options": "- Option {{index}}: {{item}}"},
		},
	}}
}

func TestRenderPromptFormatsListsAndConditionals(t *testing.T) {
	system, user, err := renderPrompt(testPrompt(), map[string]string{"decision_context": "vendor", "topic": "sourcing"}, map[string][]string{
		"options": {"Build", " ", "Buy"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Context: sourcing", system)
	assert.Equal(t, "Decide vendor\nNo budget.\nOptions:\n- Option 1: Build\n- Option 2: Buy", user)
}

func TestRenderPromptUsesIfBranchWhenSet(t *testing.T) {
	_, user, err := renderPrompt(testPrompt(), map[string]string{"decision_context": "vendor", "budget": "1M"}, nil)
	require.NoError(t, err)
	assert.Contains(t, user, "Budget: 1M")
	assert.Contains(t, user, emptyListText)
}

func TestRenderPromptRequiresVariables(t *testing.T) {
	_, _, err := renderPrompt(testPrompt(), map[string]string{"decision_context": "  "}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decision_context")
}

func TestApplyConditionalsNested(t *testing.T) {
	out := applyConditionals("{{#if a}}A{{#if b}}B{{/if}}{{else}}none{{/if}}", map[string]string{"a": "1"})
	assert.Equal(t, "A", out)

	out = applyConditionals("{{#if a}}A{{#if b}}B{{/if}}{{else}}none{{/if}}", map[string]string{"a": "1", "b": "1"})
	assert.Equal(t, "AB", out)

	out = applyConditionals("x {{#if a}}A{{else}}none{{/if}} y", nil)
	assert.Equal(t, "x none y", out)
}
