package qualify

import (
	"bytes"
	_ "embed"
	"os"
	"strings"
	"text/template"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultPromptsYAML []byte

// PromptPair is a system prompt plus a user prompt template.
type PromptPair struct {
	System string `yaml:"system"`
	User   string `yaml:"user"`

	tmpl *template.Template
}

// Prompts holds the classifier prompt templates.
type Prompts struct {
	Wholesale  PromptPair `yaml:"wholesale"`
	ProductFit PromptPair `yaml:"product_fit"`
}

// promptData is the template input for both checks.
type promptData struct {
	Company    string
	Keywords   string
	OurCompany string
}

// DefaultPrompts returns the built-in prompt templates.
func DefaultPrompts() (*Prompts, error) {
	return ParsePrompts(defaultPromptsYAML)
}

// LoadPrompts reads prompt templates from a YAML file. An empty path returns
// the built-in prompts.
func LoadPrompts(path string) (*Prompts, error) {
	if path == "" {
		return DefaultPrompts()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "qualify: read prompts %s", path)
	}
	return ParsePrompts(data)
}

// ParsePrompts parses and compiles prompt templates. The YAML has a
// top-level "prompts" key.
func ParsePrompts(data []byte) (*Prompts, error) {
	var wrapper struct {
		Prompts Prompts `yaml:"prompts"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "qualify: parse prompts")
	}
	p := &wrapper.Prompts
	for name, pair := range map[string]*PromptPair{"wholesale": &p.Wholesale, "product_fit": &p.ProductFit} {
		if strings.TrimSpace(pair.System) == "" || strings.TrimSpace(pair.User) == "" {
			return nil, eris.Errorf("qualify: prompt %s is missing system or user text", name)
		}
		t, err := template.New(name).Option("missingkey=error").Parse(pair.User)
		if err != nil {
			return nil, eris.Wrapf(err, "qualify: compile prompt %s", name)
		}
		pair.tmpl = t
	}
	return p, nil
}

func (pp *PromptPair) render(data promptData) (string, error) {
	var buf bytes.Buffer
	if err := pp.tmpl.Execute(&buf, data); err != nil {
		return "", eris.Wrap(err, "qualify: render prompt")
	}
	return strings.TrimSpace(buf.String()), nil
}
