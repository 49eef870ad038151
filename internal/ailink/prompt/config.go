package prompt

// Config describes a prompt definition loaded from YAML frontmatter.
type Config struct {
	Slug           string           `yaml:"slug" json:"slug"`
	Name           string           `yaml:"name,omitempty" json:"name,omitempty"`
	Description    string           `yaml:"description,omitempty" json:"description,omitempty"`
	Version        string           `yaml:"version,omitempty" json:"version,omitempty"`
	ResultKey      string           `yaml:"result_key,omitempty" json:"result_key,omitempty"`
	Input          InputSpec        `yaml:"input,omitempty" json:"input,omitempty"`
	SystemTemplate string           `yaml:"system_template,omitempty" json:"system_template,omitempty"`
	UserTemplate   string           `yaml:"user_template,omitempty" json:"user_template,omitempty"`
	Generation     GenerationConfig `yaml:"generation,omitempty" json:"generation,omitempty"`
	ProviderHints  map[string]any   `yaml:"provider_hints,omitempty" json:"provider_hints,omitempty"`
}

// InputSpec defines prompt input requirements.
type InputSpec struct {
	RequiredVariables []string `yaml:"required_variables,omitempty" json:"required_variables,omitempty"`
	OptionalVariables []string `yaml:"optional_variables,omitempty" json:"optional_variables,omitempty"`

	// Lists maps a list variable to its per-item format. The format may use
	// {{index}} (1-based) and {{item}}.
	Lists map[string]string `yaml:"lists,omitempty" json:"lists,omitempty"`
}

// GenerationConfig carries per-prompt sampling defaults.
type GenerationConfig struct {
	Temperature *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	MaxTokens   *int     `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
}

// Prompt wraps a validated prompt configuration with its source.
type Prompt struct {
	Config Config
	Source string
}

// ResultKey returns the reply field name, defaulting to "response".
func (p *Prompt) ResultKey() string {
	if p == nil || p.Config.ResultKey == "" {
		return "response"
	}
	return p.Config.ResultKey
}
