package ailink

import (
	"encoding/json"
	"errors"
)

// AnalyzeRequest runs one analysis prompt.
type AnalyzeRequest struct {
	Slug      string
	Variables map[string]string
	Lists     map[string][]string
	Role      string
	Model     string
}

// Reply is the uniform result of a service operation. On success the text is
// published under Key; on failure Error and Kind are set.
type Reply struct {
	Success  bool
	Key      string
	Text     string
	Error    string
	Kind     Kind
	Provider string
	Model    string
	Attempts int
}

// ReplyUsage reports which provider and model answered.
type ReplyUsage struct {
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
	Attempts int    `json:"attempts,omitempty"`
}

// MarshalJSON renders {"success": true, "<key>": text, "usage": {...}} or
// {"success": false, "error": msg, "kind": kind}.
func (r Reply) MarshalJSON() ([]byte, error) {
	if !r.Success {
		out := map[string]any{"success": false, "error": r.Error}
		if r.Kind != "" {
			out["kind"] = r.Kind
		}
		return json.Marshal(out)
	}
	key := r.Key
	if key == "" {
		key = "response"
	}
	return json.Marshal(map[string]any{
		"success": true,
		key:       r.Text,
		"usage":   ReplyUsage{Provider: r.Provider, Model: r.Model, Attempts: r.Attempts},
	})
}

func successReply(key string, res *GenerateResult) Reply {
	return Reply{
		Success:  true,
		Key:      key,
		Text:     res.Text,
		Provider: res.Provider,
		Model:    res.Model,
		Attempts: res.Attempts,
	}
}

func failureReply(err error) Reply {
	kind := KindOf(err)
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	var ie *InvokeError
	if errors.As(err, &ie) && ie.Message != "" {
		msg = ie.Message
		if ie.Kind == KindUnconfigured || ie.Kind == KindRateLimitTimeout || ie.Kind == KindRetriesExhausted {
			msg = ie.Kind.UserMessage() + " (" + ie.Message + ")"
		}
	}
	return Reply{Success: false, Error: msg, Kind: kind}
}
