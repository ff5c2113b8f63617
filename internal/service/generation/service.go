package generation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"carelane/internal/domain"
	models "carelane/internal/domain/models/contract"
	contractSvc "carelane/internal/domain/services/contract"
)

// Provider is a one-shot text completion backend.
type Provider interface {
	// Name returns the provider name.
	Name() string

	// Complete drafts text for the given prompt.
	Complete(ctx context.Context, prompt string) (string, error)
}

// service implements the Generator interface over a Provider: template
// lookup, input validation, prompt assembly, and wrapping provider
// failures as the single retryable ErrGenerationUnavailable kind.
type service struct {
	registry *Registry
	provider Provider
	logger   *slog.Logger
}

// NewService creates a new generation adapter.
func NewService(registry *Registry, provider Provider, logger *slog.Logger) contractSvc.Generator {
	return &service{
		registry: registry,
		provider: provider,
		logger:   logger,
	}
}

// Generate drafts contract text for the role and template.
func (s *service) Generate(ctx context.Context, role models.Role, templateID string, inputs map[string]string) (string, error) {
	tmpl, err := s.registry.Lookup(role, templateID)
	if err != nil {
		return "", err
	}

	// Input errors surface before any external call is made.
	if err := tmpl.ValidateInputs(inputs); err != nil {
		return "", err
	}

	prompt := tmpl.BuildPrompt(inputs)
	s.logger.Debug("generating document content",
		"provider", s.provider.Name(),
		"template_id", tmpl.ID,
		"role", role,
	)

	content, err := s.provider.Complete(ctx, prompt)
	if err != nil {
		// Context cancellation is the caller's decision, not a provider
		// outage; let it propagate unchanged.
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %s: %v", domain.ErrGenerationUnavailable, s.provider.Name(), err)
	}
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("%w: %s returned empty content", domain.ErrGenerationUnavailable, s.provider.Name())
	}

	return content, nil
}
