package generation

import (
	"context"
	"fmt"
	"strings"
)

// StaticProvider is a deterministic provider for development and tests.
// It echoes the prompt's details back as structured contract text so
// the rest of the pipeline can run without real API keys.
type StaticProvider struct{}

// NewStaticProvider creates a new static provider.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{}
}

// Name returns the provider name.
func (p *StaticProvider) Name() string {
	return "static"
}

// Complete drafts placeholder contract text derived from the prompt.
func (p *StaticProvider) Complete(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("AGREEMENT\n\n")
	b.WriteString("1. Parties and Purpose\n")
	b.WriteString("This agreement is drafted from the following request:\n\n")
	for _, line := range strings.Split(prompt, "\n") {
		if strings.HasPrefix(line, "- ") {
			fmt.Fprintf(&b, "  %s\n", line)
		}
	}
	b.WriteString("\n2. Terms\n")
	b.WriteString("The parties agree to the terms set out in the sections above.\n")
	b.WriteString("\n3. Signatures\n")
	b.WriteString("This agreement takes effect upon electronic signature.\n")
	return b.String(), nil
}
