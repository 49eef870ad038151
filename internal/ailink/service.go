package ailink

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/forgeiq/forgeiq/internal/ailink/content"
	"github.com/forgeiq/forgeiq/internal/ailink/prompt"
)

const (
	// ChatHistoryLimit is how many prior turns a chat request carries.
	ChatHistoryLimit = 10

	chatPromptSlug       = "assistant-chat"
	connectionPromptSlug = "connection-test"
)

// Service runs prompt-driven operations through the invoker.
type Service struct {
	Invoker *Invoker
	Prompts prompt.Registry
}

// Analyze renders an analysis prompt and generates its reply.
func (s *Service) Analyze(ctx context.Context, req AnalyzeRequest) (Reply, error) {
	def, err := s.prompt(req.Slug)
	if err != nil {
		return failureReply(err), err
	}

	role := promptRole(def, req.Role)
	if err := s.Invoker.checkConfigured(role); err != nil {
		return failureReply(err), err
	}

	system, user, err := renderPrompt(def, req.Variables, req.Lists)
	if err != nil {
		ie := validationError(err)
		return failureReply(ie), ie
	}

	return s.run(ctx, def, role, req.Model, []content.Message{content.System(system), content.User(user)})
}

// Chat sends message with up to ChatHistoryLimit prior turns. System turns in
// history are dropped; the persona comes from the assistant-chat prompt.
func (s *Service) Chat(ctx context.Context, message string, history []content.Message) (Reply, error) {
	def, err := s.prompt(chatPromptSlug)
	if err != nil {
		return failureReply(err), err
	}

	if err := s.Invoker.checkConfigured(promptRole(def, "")); err != nil {
		return failureReply(err), err
	}

	system, user, err := renderPrompt(def, map[string]string{"message": message}, nil)
	if err != nil {
		ie := validationError(err)
		return failureReply(ie), ie
	}

	turns := make([]content.Message, 0, ChatHistoryLimit+2)
	turns = append(turns, content.System(system))
	for _, turn := range TrimHistory(history, ChatHistoryLimit) {
		if turn.Role == content.RoleSystem {
			continue
		}
		turns = append(turns, turn)
	}
	turns = append(turns, content.User(user))

	return s.run(ctx, def, "", "", turns)
}

// Generate runs a caller-built request. The reply text is published under
// "response".
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (Reply, error) {
	if s == nil || s.Invoker == nil {
		err := &InvokeError{Kind: KindUnconfigured, Message: "ailink service not configured"}
		return failureReply(err), err
	}
	res, err := s.Invoker.Generate(ctx, req)
	if err != nil {
		return failureReply(err), err
	}
	return successReply("response", res), nil
}

// TestConnection issues the minimal connection-test prompt.
func (s *Service) TestConnection(ctx context.Context) (Reply, error) {
	return s.Analyze(ctx, AnalyzeRequest{Slug: connectionPromptSlug})
}

// PromptList returns the available prompt definitions.
func (s *Service) PromptList() []*prompt.Prompt {
	if s == nil || s.Prompts == nil {
		return nil
	}
	return s.Prompts.List()
}

// TrimHistory keeps the last limit turns.
func TrimHistory(history []content.Message, limit int) []content.Message {
	if limit <= 0 {
		return nil
	}
	if len(history) <= limit {
		return history
	}
	return history[len(history)-limit:]
}

func (s *Service) run(ctx context.Context, def *prompt.Prompt, role, model string, turns []content.Message) (Reply, error) {
	if s == nil || s.Invoker == nil {
		err := &InvokeError{Kind: KindUnconfigured, Message: "ailink service not configured"}
		return failureReply(err), err
	}
	res, err := s.Invoker.Generate(ctx, GenerateRequest{
		Role:        promptRole(def, role),
		Model:       model,
		Turns:       turns,
		Temperature: def.Config.Generation.Temperature,
		MaxTokens:   def.Config.Generation.MaxTokens,
		Prompt:      def,
	})
	if err != nil {
		return failureReply(err), err
	}
	return successReply(def.ResultKey(), res), nil
}

// promptRole routes a prompt by its slug unless the caller names a role.
func promptRole(def *prompt.Prompt, role string) string {
	if strings.TrimSpace(role) != "" {
		return role
	}
	return def.Config.Slug
}

func (s *Service) prompt(slug string) (*prompt.Prompt, error) {
	if s == nil || s.Prompts == nil {
		return nil, &InvokeError{Kind: KindUnconfigured, Message: "prompt registry not configured"}
	}
	def, err := s.Prompts.Get(slug)
	if err != nil {
		return nil, validationError(err)
	}
	return def, nil
}

func validationError(err error) *InvokeError {
	var ie *InvokeError
	if errors.As(err, &ie) {
		return ie
	}
	return &InvokeError{Kind: KindPermanentFailure, Message: fmt.Sprint(err), Cause: err, Validation: true}
}
