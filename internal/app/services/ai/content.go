package ai

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/seanotes/seanotes/internal/logging"
)

const (
	maxTitleRunes   = 80
	maxPromptRunes  = 8000
	summaryMaxToken = 300
)

// Service generates note titles, summaries and environment names.
type Service struct {
	provider Provider
	log      *logging.Logger
	now      func() time.Time
}

// NewService wraps provider. A nil provider yields a service whose generators
// return ErrNotConfigured and whose fallbacks return timestamp titles.
func NewService(provider Provider, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("ai")
	}
	return &Service{provider: provider, log: log, now: time.Now}
}

// Configured reports whether a provider is available.
func (s *Service) Configured() bool {
	return s != nil && s.provider != nil
}

// Provider returns the underlying provider, or nil.
func (s *Service) Provider() Provider {
	if s == nil {
		return nil
	}
	return s.provider
}

// GenerateTitle asks the model for a short note title.
func (s *Service) GenerateTitle(ctx context.Context, content string) (string, error) {
	return s.shortText(ctx,
		"You write concise titles for personal notes. Reply with a title of at most eight words. Do not use quotes or trailing punctuation.",
		content)
}

// GenerateEnvironmentName asks the model for a short environment name.
func (s *Service) GenerateEnvironmentName(ctx context.Context, content string) (string, error) {
	return s.shortText(ctx,
		"You name configuration environments. Reply with a descriptive name of at most five words. Do not use quotes or trailing punctuation.",
		content)
}

// GenerateSummary asks the model for a short summary of content.
func (s *Service) GenerateSummary(ctx context.Context, content string) (string, error) {
	if !s.Configured() {
		return "", ErrNotConfigured
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return "", errors.New("content is empty")
	}
	out, err := s.provider.Complete(ctx, []Message{
		{Role: RoleSystem, Content: "Summarize the user's note in two or three sentences. Keep the original language and do not add information."},
		{Role: RoleUser, Content: truncateRunes(content, maxPromptRunes)},
	}, CompletionOptions{Temperature: 0.3, MaxTokens: summaryMaxToken})
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", errors.New("empty summary")
	}
	return out, nil
}

// GenerateTitleWithFallback returns a generated title, or a timestamp title on failure.
func (s *Service) GenerateTitleWithFallback(ctx context.Context, content string) string {
	title, err := s.GenerateTitle(ctx, content)
	if err != nil {
		if !errors.Is(err, ErrNotConfigured) {
			s.log.WithContext(ctx).WithError(err).Warn("title generation failed, using timestamp")
		}
		return TimestampTitle(s.now())
	}
	return title
}

// GenerateEnvironmentNameWithFallback returns a generated name, or a timestamp name on failure.
func (s *Service) GenerateEnvironmentNameWithFallback(ctx context.Context, content string) string {
	name, err := s.GenerateEnvironmentName(ctx, content)
	if err != nil {
		if !errors.Is(err, ErrNotConfigured) {
			s.log.WithContext(ctx).WithError(err).Warn("name generation failed, using timestamp")
		}
		return TimestampTitle(s.now())
	}
	return name
}

func (s *Service) shortText(ctx context.Context, instruction, content string) (string, error) {
	if !s.Configured() {
		return "", ErrNotConfigured
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return "", errors.New("content is empty")
	}
	out, err := s.provider.Complete(ctx, []Message{
		{Role: RoleSystem, Content: instruction},
		{Role: RoleUser, Content: truncateRunes(content, maxPromptRunes)},
	}, CompletionOptions{Temperature: 0.4, MaxTokens: 32})
	if err != nil {
		return "", err
	}
	title := CleanTitle(out)
	if title == "" {
		return "", errors.New("empty title")
	}
	return title, nil
}

// CleanTitle keeps the first non-empty line of a model reply, strips quotes,
// a "Title:" prefix and trailing punctuation, and limits it to 80 characters.
func CleanTitle(raw string) string {
	var line string
	for _, l := range strings.Split(raw, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			line = l
			break
		}
	}
	for _, prefix := range []string{"Title:", "title:", "Name:", "name:"} {
		line = strings.TrimSpace(strings.TrimPrefix(line, prefix))
	}
	line = strings.Trim(line, "\"'`*#“”‘’ ")
	line = strings.TrimRight(line, ".:;,")
	return strings.TrimSpace(truncateRunes(line, maxTitleRunes))
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
