package ailink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeiq/forgeiq/internal/admission"
	"github.com/forgeiq/forgeiq/internal/ailink/content"
	"github.com/forgeiq/forgeiq/internal/ailink/prompt"
)

func newService(t *testing.T, steps ...step) (*Service, *fixture) {
	t.Helper()
	fx := newFixture(t, admission.DefaultQuota(), steps...)
	prompts, err := prompt.DefaultRegistry()
	require.NoError(t, err)
	return &Service{Invoker: fx.invoker, Prompts: prompts}, fx
}

func TestAnalyzeDecisionRendersListsAndResultKey(t *testing.T) {
	svc, fx := newService(t, step{text: "Option 2 wins"})

	reply, err := svc.Analyze(context.Background(), AnalyzeRequest{
		Slug:      "decision-analysis",
		Variables: map[string]string{"decision_context": "New plant location"},
		Lists: map[string][]string{
			"options":  {"Ohio", "Texas"},
			"criteria": {"Cost", "Talent"},
		},
	})
	require.NoError(t, err)
	assert.True(t, reply.Success)
	assert.Equal(t, "analysis", reply.Key)
	assert.Equal(t, "Option 2 wins", reply.Text)

	req := fx.drv.lastRequest()
	require.NotNil(t, req)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, content.RoleSystem, req.Messages[0].Role)
	assert.Contains(t, req.Messages[0].PlainText(), "Context: Executive Decision Support Analysis")
	user := req.Messages[1].PlainText()
	assert.Contains(t, user, "- Option 1: Ohio\n- Option 2: Texas")
	assert.Contains(t, user, "- Cost\n- Talent")
	assert.Equal(t, "decision-analysis", req.PromptSlug)
}

func TestAnalyzeMissingVariableMakesNoCall(t *testing.T) {
	svc, fx := newService(t, step{text: "unused"})

	reply, err := svc.Analyze(context.Background(), AnalyzeRequest{Slug: "decision-analysis"})
	require.Error(t, err)
	var ie *InvokeError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, KindPermanentFailure, ie.Kind)
	assert.True(t, ie.Validation)
	assert.False(t, reply.Success)
	assert.Equal(t, 0, fx.drv.calls())
	assert.Equal(t, 0, fx.ctrl.Usage().Used)
}

func TestAnalyzeUnconfiguredWinsOverMissingVariables(t *testing.T) {
	svc, fx := newService(t, step{text: "unused"})
	svc.Invoker.Providers = registryWith(providerConfig(CredentialConfig{Enabled: true, Label: "env", APIKeyEnv: "FORGEIQ_TEST_UNSET_KEY"}), fx.drv)

	reply, err := svc.Analyze(context.Background(), AnalyzeRequest{Slug: "decision-analysis"})
	ie := requireKind(t, err, KindUnconfigured)
	assert.False(t, ie.Validation)
	assert.Equal(t, "primary", ie.Provider)
	assert.False(t, reply.Success)
	assert.Equal(t, KindUnconfigured, reply.Kind)

	_, err = svc.Chat(context.Background(), "", nil)
	requireKind(t, err, KindUnconfigured)

	assert.Equal(t, 0, fx.drv.calls())
	assert.Equal(t, 0, fx.ctrl.Usage().Used)
}

func TestAnalyzeUnknownPrompt(t *testing.T) {
	svc, fx := newService(t, step{text: "unused"})

	_, err := svc.Analyze(context.Background(), AnalyzeRequest{Slug: "nope"})
	require.Error(t, err)
	assert.Equal(t, KindPermanentFailure, KindOf(err))
	assert.Equal(t, 0, fx.drv.calls())
}

func TestChatTrimsHistoryAndLeadsWithPersona(t *testing.T) {
	svc, fx := newService(t, step{text: "hello back"})

	history := []content.Message{content.System("ignored persona")}
	for i := 0; i < 14; i++ {
		if i%2 == 0 {
			history = append(history, content.User(fmt.Sprintf("u%d", i)))
		} else {
			history = append(history, content.Assistant(fmt.Sprintf("a%d", i)))
		}
	}

	reply, err := svc.Chat(context.Background(), "What next?", history)
	require.NoError(t, err)
	assert.Equal(t, "response", reply.Key)

	req := fx.drv.lastRequest()
	require.Len(t, req.Messages, 12)
	assert.Equal(t, content.RoleSystem, req.Messages[0].Role)
	assert.Contains(t, req.Messages[0].PlainText(), "AI Business Analyst Assistant")
	assert.Equal(t, "u4", req.Messages[1].PlainText())
	assert.Equal(t, "a13", req.Messages[10].PlainText())
	assert.Equal(t, content.RoleUser, req.Messages[11].Role)
	assert.Equal(t, "What next?", req.Messages[11].PlainText())
}

func TestChatRequiresMessage(t *testing.T) {
	svc, fx := newService(t, step{text: "unused"})

	_, err := svc.Chat(context.Background(), "   ", nil)
	require.Error(t, err)
	assert.Equal(t, KindPermanentFailure, KindOf(err))
	assert.Equal(t, 0, fx.drv.calls())
}

func TestTestConnectionCapsTokens(t *testing.T) {
	svc, fx := newService(t, step{text: "Connection successful!"})

	reply, err := svc.TestConnection(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Connection successful!", reply.Text)

	req := fx.drv.lastRequest()
	require.NotNil(t, req.MaxTokens)
	assert.Equal(t, 50, *req.MaxTokens)
}

func TestGenerateUsesResponseKey(t *testing.T) {
	svc, fx := newService(t, step{text: "raw answer"})

	reply, err := svc.Generate(context.Background(), GenerateRequest{
		Turns: []content.Message{content.User("ping")},
	})
	require.NoError(t, err)
	assert.Equal(t, "response", reply.Key)
	assert.Equal(t, "raw answer", reply.Text)
	assert.Equal(t, "primary", reply.Provider)
	assert.Equal(t, 1, fx.drv.calls())
}

func TestGenerateWithoutInvoker(t *testing.T) {
	reply, err := (&Service{}).Generate(context.Background(), GenerateRequest{})
	require.Error(t, err)
	assert.Equal(t, KindUnconfigured, KindOf(err))
	assert.False(t, reply.Success)
}

func TestTrimHistory(t *testing.T) {
	turns := []content.Message{content.User("1"), content.User("2"), content.User("3")}
	assert.Len(t, TrimHistory(turns, 10), 3)
	assert.Equal(t, "3", TrimHistory(turns, 1)[0].PlainText())
	assert.Nil(t, TrimHistory(turns, 0))
}

func TestReplyJSON(t *testing.T) {
	ok, err := json.Marshal(Reply{Success: true, Key: "plan", Text: "do it", Provider: "primary", Model: "m", Attempts: 2})
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"plan":"do it","usage":{"provider":"primary","model":"m","attempts":2}}`, string(ok))

	failed := failureReply(&InvokeError{Kind: KindRetriesExhausted, Message: "503 from provider"})
	raw, err := json.Marshal(failed)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, false, decoded["success"])
	assert.Equal(t, "retries_exhausted", decoded["kind"])
	assert.Contains(t, decoded["error"], "503 from provider")
	assert.NotContains(t, decoded, "usage")
}
