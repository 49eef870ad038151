package ailink

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/forgeiq/forgeiq/internal/ailink/prompt"
)

const emptyListText = "(none provided)"

// renderPrompt produces the system and user text for def. Required variables
// must be non-blank; declared optional variables and lists default to empty.
func renderPrompt(def *prompt.Prompt, vars map[string]string, lists map[string][]string) (string, string, error) {
	if def == nil {
		return "", "", fmt.Errorf("prompt is required")
	}

	merged := make(map[string]string, len(vars)+len(lists))
	for _, name := range def.Config.Input.OptionalVariables {
		merged[name] = ""
	}
	for key, value := range vars {
		merged[key] = value
	}

	var missing []string
	for _, required := range def.Config.Input.RequiredVariables {
		if strings.TrimSpace(merged[required]) == "" {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		return "", "", fmt.Errorf("required variable(s) not provided: %s", strings.Join(missing, ", "))
	}

	listNames := make([]string, 0, len(def.Config.Input.Lists))
	for name := range def.Config.Input.Lists {
		listNames = append(listNames, name)
	}
	sort.Strings(listNames)
	for _, name := range listNames {
		merged[name] = formatList(def.Config.Input.Lists[name], lists[name])
	}

	system := applyVars(applyConditionals(def.Config.SystemTemplate, merged), merged)
	user := applyVars(applyConditionals(def.Config.UserTemplate, merged), merged)
	if strings.TrimSpace(system) == "" {
		return "", "", fmt.Errorf("system prompt is required")
	}
	return strings.TrimSpace(system), strings.TrimSpace(user), nil
}

// formatList renders items one per line using format ({{index}} is 1-based).
func formatList(format string, items []string) string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		line := strings.ReplaceAll(format, "{{index}}", strconv.Itoa(len(lines)+1))
		lines = append(lines, strings.ReplaceAll(line, "{{item}}", item))
	}
	if len(lines) == 0 {
		return emptyListText
	}
	return strings.Join(lines, "\n")
}

func applyVars(template string, vars map[string]string) string {
	if len(vars) == 0 {
		return template
	}
	pairs := make([]string, 0, len(vars)*2)
	for key, value := range vars {
		pairs = append(pairs, "{{"+key+"}}", value)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// applyConditionals handles {{#if var}}content{{else}}fallback{{/if}} blocks.
// The content is kept when var is present and non-blank, otherwise the fallback.
func applyConditionals(template string, vars map[string]string) string {
	result := template
	for {
		start := strings.Index(result, "{{#if")
		if start == -1 {
			return result
		}
		tagEnd := strings.Index(result[start:], "}}")
		if tagEnd == -1 {
			return result
		}
		tagEnd += start

		varName := strings.TrimSpace(result[start+len("{{#if") : tagEnd])
		blockStart := tagEnd + 2

		elseStart, elseEnd, endStart, endEnd := findConditionalBlock(result, blockStart)
		if endStart == -1 {
			return result
		}

		ifContent := result[blockStart:endStart]
		elseContent := ""
		if elseStart != -1 {
			ifContent = result[blockStart:elseStart]
			elseContent = result[elseEnd:endStart]
		}

		replacement := elseContent
		if strings.TrimSpace(vars[varName]) != "" {
			replacement = ifContent
		}
		result = result[:start] + replacement + result[endEnd:]
	}
}

// findConditionalBlock locates the {{else}} and matching {{/if}} for a block
// opened just before start, honouring nesting.
func findConditionalBlock(input string, start int) (elseStart, elseEnd, endStart, endEnd int) {
	depth := 0
	elseStart, elseEnd = -1, -1

	pos := start
	for {
		openIdx := strings.Index(input[pos:], "{{")
		if openIdx == -1 {
			return -1, -1, -1, -1
		}
		openIdx += pos

		closeIdx := strings.Index(input[openIdx:], "}}")
		if closeIdx == -1 {
			return -1, -1, -1, -1
		}
		closeIdx += openIdx

		tag := strings.TrimSpace(input[openIdx+2 : closeIdx])
		switch {
		case tag == "#if" || strings.HasPrefix(tag, "#if "):
			depth++
		case tag == "/if":
			if depth == 0 {
				return elseStart, elseEnd, openIdx, closeIdx + 2
			}
			depth--
		case tag == "else" && depth == 0 && elseStart == -1:
			elseStart = openIdx
			elseEnd = closeIdx + 2
		}

		pos = closeIdx + 2
	}
}
