package prompt

import (
	"bufio"
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/fulmenhq/gofulmen/schema"
	"gopkg.in/yaml.v3"
)

// Load parses and validates a prompt definition. The markdown body becomes
// the user template when user_template is not set in the frontmatter.
func Load(source string, data []byte) (*Prompt, error) {
	config, body, err := parseYAMLWithFrontmatter(data)
	if err != nil {
		return nil, fmt.Errorf("parse prompt %s: %w", source, err)
	}

	if strings.TrimSpace(config.UserTemplate) == "" {
		config.UserTemplate = strings.TrimSpace(body)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("validate prompt %s: %w", source, err)
	}

	return &Prompt{Config: config, Source: source}, nil
}

// LoadFromDir reads all prompt files (.md with YAML frontmatter) from a directory.
func LoadFromDir(dir string) ([]*Prompt, error) {
	entries, err := filepath.Glob(filepath.Join(dir, "*.md"))
	if err != nil {
		return nil, fmt.Errorf("scan prompts: %w", err)
	}
	results := make([]*Prompt, 0, len(entries))
	for _, path := range entries {
		data, err := os.ReadFile(path) // #nosec G304 -- Prompt path is user-provided
		if err != nil {
			return nil, fmt.Errorf("read prompt %s: %w", path, err)
		}
		prompt, err := Load(path, data)
		if err != nil {
			return nil, err
		}
		results = append(results, prompt)
	}
	return results, nil
}

func parseYAMLWithFrontmatter(data []byte) (Config, string, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Config{}, "", fmt.Errorf("empty prompt")
	}

	lines := bufio.NewScanner(bytes.NewReader(trimmed))
	lines.Split(bufio.ScanLines)

	var (
		frontmatter []string
		body        []string
		inFront     bool
		headerSeen  bool
	)

	for lines.Scan() {
		line := lines.Text()
		switch {
		case !headerSeen && strings.TrimSpace(line) == "---":
			headerSeen = true
			inFront = true
		case headerSeen && inFront && strings.TrimSpace(line) == "---":
			inFront = false
		default:
			if inFront {
				frontmatter = append(frontmatter, line)
			} else {
				body = append(body, line)
			}
		}
	}
	if err := lines.Err(); err != nil {
		return Config{}, "", err
	}

	var cfg Config
	if headerSeen {
		if err := yaml.Unmarshal([]byte(strings.Join(frontmatter, "\n")), &cfg); err != nil {
			return Config{}, "", fmt.Errorf("invalid frontmatter: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(trimmed, &cfg); err != nil {
			return Config{}, "", fmt.Errorf("invalid yaml: %w", err)
		}
	}

	return cfg, strings.Join(body, "\n"), nil
}

//go:embed schemas/prompt.schema.json
var promptSchema []byte

var (
	promptValidatorOnce sync.Once
	promptValidator     *schema.Validator
	promptValidatorErr  error
)

func validatorForPrompts() (*schema.Validator, error) {
	promptValidatorOnce.Do(func() {
		promptValidator, promptValidatorErr = schema.NewValidator(promptSchema)
	})
	return promptValidator, promptValidatorErr
}

func validateConfig(cfg Config) error {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal prompt config: %w", err)
	}
	validator, err := validatorForPrompts()
	if err != nil {
		return fmt.Errorf("load prompt schema: %w", err)
	}
	diagnostics, err := validator.ValidateJSON(payload)
	if err != nil {
		return fmt.Errorf("validate prompt schema: %w", err)
	}
	if len(diagnostics) > 0 {
		return fmt.Errorf("schema validation failed: %s", describeDiagnostic(diagnostics))
	}

	// Names must be unique across both variable lists.
	seen := map[string]bool{}
	for _, name := range slices.Concat(cfg.Input.RequiredVariables, cfg.Input.OptionalVariables) {
		if seen[name] {
			return fmt.Errorf("variable %q declared twice", name)
		}
		seen[name] = true
	}
	return nil
}

// describeDiagnostic skips the root wrapper and reports the first failing
// keyword with its instance pointer.
func describeDiagnostic(diagnostics []schema.Diagnostic) string {
	d := diagnostics[0]
	for _, candidate := range diagnostics {
		if candidate.Keyword != "" {
			d = candidate
			break
		}
	}
	if d.Pointer == "" {
		return d.Message
	}
	return d.Pointer + ": " + d.Message
}
