package output

import (
	"fmt"
	"strings"

	"github.com/forgeiq/forgeiq/internal/admission"
	"github.com/forgeiq/forgeiq/internal/ailink"
	"github.com/forgeiq/forgeiq/internal/ailink/prompt"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// Formatter renders CLI results.
type Formatter interface {
	FormatReply(reply ailink.Reply) (string, error)
	FormatPrompts(prompts []*prompt.Prompt) (string, error)
	FormatUsage(usage admission.Usage) (string, error)
	FormatQuota(quota admission.Quota) (string, error)
	FormatProviders(statuses []ailink.ProviderStatus) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	default:
		return &TableFormatter{}
	}
}

// quotaNote tells the reader a quota view is not a live reading.
const quotaNote = "configured quota; live usage needs --server"

// quotaView is a configured quota with no window state behind it.
type quotaView struct {
	MaxRequests   int     `json:"max_requests"`
	WindowSeconds float64 `json:"window_seconds"`
	Live          bool    `json:"live"`
	Note          string  `json:"note"`
}

func viewQuota(q admission.Quota) quotaView {
	return quotaView{MaxRequests: q.MaxRequests, WindowSeconds: q.Window.Seconds(), Note: quotaNote}
}

// promptRow is the flattened view of a prompt shared by every formatter.
type promptRow struct {
	Slug      string   `json:"slug"`
	Name      string   `json:"name"`
	ResultKey string   `json:"result_key"`
	Required  []string `json:"required_variables,omitempty"`
	Optional  []string `json:"optional_variables,omitempty"`
	Lists     []string `json:"lists,omitempty"`
}

func promptRows(prompts []*prompt.Prompt) []promptRow {
	rows := make([]promptRow, 0, len(prompts))
	for _, p := range prompts {
		if p == nil {
			continue
		}
		row := promptRow{
			Slug:      p.Config.Slug,
			Name:      p.Config.Name,
			ResultKey: p.ResultKey(),
			Required:  p.Config.Input.RequiredVariables,
			Optional:  p.Config.Input.OptionalVariables,
		}
		for name := range p.Config.Input.Lists {
			row.Lists = append(row.Lists, name)
		}
		sortStrings(row.Lists)
		rows = append(rows, row)
	}
	return rows
}

func variablesCell(row promptRow) string {
	parts := make([]string, 0, len(row.Required)+len(row.Optional)+len(row.Lists))
	for _, v := range row.Required {
		parts = append(parts, v+"*")
	}
	parts = append(parts, row.Optional...)
	for _, v := range row.Lists {
		parts = append(parts, v+"[]")
	}
	return strings.Join(parts, ", ")
}

func replyStatus(reply ailink.Reply) string {
	if reply.Success {
		return "ok"
	}
	if reply.Kind != "" {
		return string(reply.Kind)
	}
	return "error"
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
