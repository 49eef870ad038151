package output

import (
	"fmt"
	"strings"

	"github.com/forgeiq/forgeiq/internal/admission"
	"github.com/forgeiq/forgeiq/internal/ailink"
	"github.com/forgeiq/forgeiq/internal/ailink/prompt"
)

// MarkdownFormatter renders results as Markdown.
type MarkdownFormatter struct{}

func (f *MarkdownFormatter) FormatReply(reply ailink.Reply) (string, error) {
	var sb strings.Builder
	if !reply.Success {
		sb.WriteString(fmt.Sprintf("**Error** (%s): %s\n", replyStatus(reply), reply.Error))
		return sb.String(), nil
	}

	title := reply.Key
	if title == "" {
		title = "response"
	}
	sb.WriteString(fmt.Sprintf("## %s\n\n", strings.ToUpper(title[:1])+title[1:]))
	sb.WriteString(strings.TrimSpace(reply.Text))
	sb.WriteString("\n")
	if reply.Provider != "" {
		sb.WriteString(fmt.Sprintf("\n_%s · %s · %s_\n", reply.Provider, reply.Model, pluralAttempts(reply.Attempts)))
	}
	return sb.String(), nil
}

func (f *MarkdownFormatter) FormatPrompts(prompts []*prompt.Prompt) (string, error) {
	var sb strings.Builder
	sb.WriteString("| Slug | Name | Result Key | Variables |\n")
	sb.WriteString("|------|------|------------|-----------|\n")
	for _, row := range promptRows(prompts) {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
			escapeMarkdownCell(row.Slug),
			escapeMarkdownCell(row.Name),
			escapeMarkdownCell(row.ResultKey),
			escapeMarkdownCell(variablesCell(row)),
		))
	}
	return sb.String(), nil
}

func (f *MarkdownFormatter) FormatUsage(usage admission.Usage) (string, error) {
	return fmt.Sprintf("| Used | Limit | Available | Window | Wait |\n|------|-------|-----------|--------|------|\n| %d | %d | %d | %gs | %.1fs |\n",
		usage.Used, usage.Limit, usage.Available, usage.WindowSeconds, usage.WaitSeconds), nil
}

func (f *MarkdownFormatter) FormatQuota(quota admission.Quota) (string, error) {
	v := viewQuota(quota)
	return fmt.Sprintf("_%s_\n\n| Max Requests | Window |\n|--------------|--------|\n| %d | %gs |\n",
		v.Note, v.MaxRequests, v.WindowSeconds), nil
}

func (f *MarkdownFormatter) FormatProviders(statuses []ailink.ProviderStatus) (string, error) {
	var sb strings.Builder
	sb.WriteString("| Provider | Type | Enabled | Configured | Model |\n")
	sb.WriteString("|----------|------|---------|------------|-------|\n")
	for _, s := range statuses {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s |\n",
			escapeMarkdownCell(s.ID),
			escapeMarkdownCell(s.AIProvider),
			yesNo(s.Enabled),
			yesNo(s.Configured),
			escapeMarkdownCell(s.Model),
		))
	}
	return sb.String(), nil
}

func pluralAttempts(n int) string {
	if n == 1 {
		return "1 attempt"
	}
	return fmt.Sprintf("%d attempts", n)
}

func escapeMarkdownCell(value string) string {
	return strings.ReplaceAll(value, "|", "\\|")
}
