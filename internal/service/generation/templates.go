package generation

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"carelane/internal/domain"
	models "carelane/internal/domain/models/contract"
)

//go:embed templates.yaml
var templatesYAML []byte

// Template describes one role-bound document template: the variables a
// caller must supply and the drafting instructions for the provider.
type Template struct {
	ID        string      `yaml:"id"`
	Role      models.Role `yaml:"role"`
	Name      string      `yaml:"name"`
	Variables []string    `yaml:"variables"`
	Sections  []string    `yaml:"sections"`
	Prompt    string      `yaml:"prompt"`
}

// Registry maps the closed role enumeration to its templates. Unknown
// roles and unknown template ids are rejected at the boundary.
type Registry struct {
	byID map[string]Template
}

type templatesFile struct {
	Templates []Template `yaml:"templates"`
}

// NewRegistry loads the embedded template table.
func NewRegistry() (*Registry, error) {
	var file templatesFile
	if err := yaml.Unmarshal(templatesYAML, &file); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	byID := make(map[string]Template, len(file.Templates))
	for _, t := range file.Templates {
		if _, err := models.ParseRole(string(t.Role)); err != nil {
			return nil, fmt.Errorf("template %s: %w", t.ID, err)
		}
		if _, dup := byID[t.ID]; dup {
			return nil, fmt.Errorf("duplicate template id %s", t.ID)
		}
		byID[t.ID] = t
	}
	return &Registry{byID: byID}, nil
}

// Lookup resolves a template for the role, rejecting mismatches: a
// template may only be used with the role it was declared for.
func (r *Registry) Lookup(role models.Role, templateID string) (Template, error) {
	t, ok := r.byID[templateID]
	if !ok {
		return Template{}, &domain.NotFoundError{Message: fmt.Sprintf("template %s not found", templateID)}
	}
	if t.Role != role {
		return Template{}, &domain.ValidationError{
			Message: fmt.Sprintf("template %s belongs to role %s, not %s", templateID, t.Role, role),
		}
	}
	return t, nil
}

// TemplatesForRole lists templates declared for a role, in id order.
func (r *Registry) TemplatesForRole(role models.Role) []Template {
	var out []Template
	for _, t := range r.byID {
		if t.Role == role {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ValidateInputs checks that every declared variable is present and
// non-blank. Runs before any external call.
func (t Template) ValidateInputs(inputs map[string]string) error {
	var missing []string
	for _, v := range t.Variables {
		if strings.TrimSpace(inputs[v]) == "" {
			missing = append(missing, v)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return &domain.TemplateInputError{TemplateID: t.ID, Missing: missing}
	}
	return nil
}

// BuildPrompt assembles the drafting instruction sent to the provider.
func (t Template) BuildPrompt(inputs map[string]string) string {
	keys := make([]string, 0, len(inputs))
	for k := range inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(strings.TrimSpace(t.Prompt))
	b.WriteString("\n\nDocument: ")
	b.WriteString(t.Name)
	b.WriteString("\nSections: ")
	b.WriteString(strings.Join(t.Sections, ", "))
	b.WriteString("\n\nDetails:\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "- %s: %s\n", k, inputs[k])
	}
	return b.String()
}
