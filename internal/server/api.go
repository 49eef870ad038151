package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/forgeiq/forgeiq/internal/admission"
	"github.com/forgeiq/forgeiq/internal/ailink"
	"github.com/forgeiq/forgeiq/internal/ailink/content"
	apperrors "github.com/forgeiq/forgeiq/internal/errors"
	"github.com/forgeiq/forgeiq/internal/output"
)

const maxBodyBytes = 1 << 20

// api serves /v1. Every field may be nil; the matching routes then answer
// with an Unconfigured or unavailable error.
type api struct {
	service   *ailink.Service
	admission *admission.Controller
	providers *ailink.Registry
}

type turnBody struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type generateBody struct {
	Turns       []turnBody `json:"turns"`
	Temperature *float64   `json:"temperature,omitempty"`
	MaxTokens   *int       `json:"max_tokens,omitempty"`
	Model       string     `json:"model,omitempty"`
	Role        string     `json:"role,omitempty"`
	MaxAttempts int        `json:"max_attempts,omitempty"`
}

type chatBody struct {
	Message string     `json:"message"`
	History []turnBody `json:"history,omitempty"`
}

type analyzeBody struct {
	Variables map[string]string   `json:"variables,omitempty"`
	Lists     map[string][]string `json:"lists,omitempty"`
	Role      string              `json:"role,omitempty"`
	Model     string              `json:"model,omitempty"`
}

func (a *api) generate(w http.ResponseWriter, r *http.Request) {
	var body generateBody
	if !decodeBody(w, r, &body) {
		return
	}
	turns, err := toMessages(body.Turns)
	if err != nil {
		HandleError(w, r, apperrors.WrapInvalidInput(r.Context(), err, err.Error()))
		return
	}
	if body.MaxAttempts < 0 {
		HandleError(w, r, apperrors.NewInvalidInputError("max_attempts must not be negative"))
		return
	}

	reply, err := a.service.Generate(r.Context(), ailink.GenerateRequest{
		Role:        body.Role,
		Model:       body.Model,
		Turns:       turns,
		Temperature: body.Temperature,
		MaxTokens:   body.MaxTokens,
		MaxAttempts: body.MaxAttempts,
	})
	a.respond(w, r, reply, err)
}

func (a *api) chat(w http.ResponseWriter, r *http.Request) {
	var body chatBody
	if !decodeBody(w, r, &body) {
		return
	}
	history, err := toMessages(body.History)
	if err != nil {
		HandleError(w, r, apperrors.WrapInvalidInput(r.Context(), err, err.Error()))
		return
	}

	reply, err := a.service.Chat(r.Context(), body.Message, history)
	a.respond(w, r, reply, err)
}

func (a *api) analyze(w http.ResponseWriter, r *http.Request) {
	var body analyzeBody
	if !decodeBody(w, r, &body) {
		return
	}

	reply, err := a.service.Analyze(r.Context(), ailink.AnalyzeRequest{
		Slug:      chi.URLParam(r, "slug"),
		Variables: body.Variables,
		Lists:     body.Lists,
		Role:      body.Role,
		Model:     body.Model,
	})
	a.respond(w, r, reply, err)
}

func (a *api) prompts(w http.ResponseWriter, r *http.Request) {
	body, err := (&output.JSONFormatter{}).FormatPrompts(a.service.PromptList())
	if err != nil {
		HandleError(w, r, apperrors.WrapInternal(r.Context(), err, "failed to render prompts"))
		return
	}
	writeRaw(w, http.StatusOK, body)
}

func (a *api) providerStatuses(w http.ResponseWriter, r *http.Request) {
	var statuses []ailink.ProviderStatus
	if a.providers != nil {
		statuses = a.providers.Statuses()
	}
	body, err := (&output.JSONFormatter{}).FormatProviders(statuses)
	if err != nil {
		HandleError(w, r, apperrors.WrapInternal(r.Context(), err, "failed to render providers"))
		return
	}
	writeRaw(w, http.StatusOK, body)
}

func (a *api) usage(w http.ResponseWriter, r *http.Request) {
	if a.admission == nil {
		HandleError(w, r, apperrors.Wrap(r.Context(), apperrors.CodeUnavailable, nil, "admission controller not initialized"))
		return
	}
	writeJSON(w, http.StatusOK, a.admission.Usage())
}

// respond writes reply on success. Failures go through the error envelope; a
// rate-limit timeout also advertises when the next slot frees up.
func (a *api) respond(w http.ResponseWriter, r *http.Request, reply ailink.Reply, err error) {
	if err != nil {
		if ailink.KindOf(err) == ailink.KindRateLimitTimeout && a.admission != nil {
			if wait := a.admission.CurrentWaitTime(); wait > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			}
		}
		HandleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var msg string
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			msg = "request body is required"
		case errors.As(err, &maxErr):
			msg = fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit)
		default:
			msg = "invalid request body: " + err.Error()
		}
		HandleError(w, r, apperrors.WrapInvalidInput(r.Context(), err, msg))
		return false
	}
	return true
}

func toMessages(turns []turnBody) ([]content.Message, error) {
	out := make([]content.Message, 0, len(turns))
	for i, t := range turns {
		role, err := content.ParseRole(t.Role)
		if err != nil {
			return nil, fmt.Errorf("turn %d: %w", i, err)
		}
		if strings.TrimSpace(t.Content) == "" {
			return nil, fmt.Errorf("turn %d: content is required", i)
		}
		out = append(out, content.Text(role, t.Content))
	}
	return out, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRaw(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body+"\n")
}
