package output

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/forgeiq/forgeiq/internal/admission"
	"github.com/forgeiq/forgeiq/internal/ailink"
	"github.com/forgeiq/forgeiq/internal/ailink/prompt"
)

// TableFormatter renders results as ASCII tables. Reply text is printed
// below the table verbatim so markdown from the model stays readable.
type TableFormatter struct{}

func (f *TableFormatter) FormatReply(reply ailink.Reply) (string, error) {
	t := newTable()
	t.AppendHeader(table.Row{"Status", "Provider", "Model", "Attempts"})
	t.AppendRow(table.Row{replyStatus(reply), reply.Provider, reply.Model, attemptsCell(reply.Attempts)})

	var sb strings.Builder
	sb.WriteString(t.Render())
	sb.WriteString("\n\n")
	if reply.Success {
		sb.WriteString(reply.Text)
	} else {
		sb.WriteString("Error: ")
		sb.WriteString(reply.Error)
	}
	return sb.String(), nil
}

func (f *TableFormatter) FormatPrompts(prompts []*prompt.Prompt) (string, error) {
	t := newTable()
	t.AppendHeader(table.Row{"Slug", "Name", "Result Key", "Variables"})
	for _, row := range promptRows(prompts) {
		t.AppendRow(table.Row{row.Slug, row.Name, row.ResultKey, variablesCell(row)})
	}
	t.AppendFooter(table.Row{"", "", "", "* required, [] list"})
	return t.Render(), nil
}

func (f *TableFormatter) FormatUsage(usage admission.Usage) (string, error) {
	t := newTable()
	t.AppendHeader(table.Row{"Used", "Limit", "Available", "Window", "Wait"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
	})
	t.AppendRow(table.Row{
		usage.Used,
		usage.Limit,
		usage.Available,
		fmt.Sprintf("%gs", usage.WindowSeconds),
		fmt.Sprintf("%.1fs", usage.WaitSeconds),
	})
	return t.Render(), nil
}

func (f *TableFormatter) FormatQuota(quota admission.Quota) (string, error) {
	v := viewQuota(quota)
	t := newTable()
	t.SetTitle(v.Note)
	t.AppendHeader(table.Row{"Max Requests", "Window"})
	t.AppendRow(table.Row{v.MaxRequests, fmt.Sprintf("%gs", v.WindowSeconds)})
	return t.Render(), nil
}

func (f *TableFormatter) FormatProviders(statuses []ailink.ProviderStatus) (string, error) {
	t := newTable()
	t.AppendHeader(table.Row{"Provider", "Type", "Enabled", "Configured", "Model"})
	for _, s := range statuses {
		t.AppendRow(table.Row{s.ID, s.AIProvider, yesNo(s.Enabled), yesNo(s.Configured), s.Model})
	}
	return t.Render(), nil
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	return t
}

func attemptsCell(n int) string {
	if n <= 0 {
		return "-"
	}
	return fmt.Sprintf("%d", n)
}

func sortStrings(values []string) {
	sort.Strings(values)
}
