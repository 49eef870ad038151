package output

import (
	"encoding/json"

	"github.com/forgeiq/forgeiq/internal/admission"
	"github.com/forgeiq/forgeiq/internal/ailink"
	"github.com/forgeiq/forgeiq/internal/ailink/prompt"
)

// JSONFormatter renders results as JSON.
type JSONFormatter struct {
	Indent bool
}

func (f *JSONFormatter) FormatReply(reply ailink.Reply) (string, error) {
	return f.marshal(reply)
}

func (f *JSONFormatter) FormatPrompts(prompts []*prompt.Prompt) (string, error) {
	return f.marshal(promptRows(prompts))
}

func (f *JSONFormatter) FormatUsage(usage admission.Usage) (string, error) {
	return f.marshal(usage)
}

func (f *JSONFormatter) FormatQuota(quota admission.Quota) (string, error) {
	return f.marshal(viewQuota(quota))
}

func (f *JSONFormatter) FormatProviders(statuses []ailink.ProviderStatus) (string, error) {
	if statuses == nil {
		statuses = []ailink.ProviderStatus{}
	}
	return f.marshal(statuses)
}

func (f *JSONFormatter) marshal(v any) (string, error) {
	var (
		data []byte
		err  error
	)
	if f.Indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}
