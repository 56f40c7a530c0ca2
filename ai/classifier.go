package ai

import (
	"context"
	"strings"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"taskpilot-api/domain"
)

const (
	// EmptyInsights is the insight string for a user with no tasks.
	EmptyInsights = "No tasks available for analysis."
	// FallbackInsights is the insight string when narration fails.
	FallbackInsights = "Unable to generate insights at this time."

	maxInsightTasks = 10
	maxCategoryLen  = 50
)

// Classifier guesses category and priority for tasks and narrates task sets.
// All methods are total: any upstream failure degrades to a fixed default and
// is never surfaced to the caller.
type Classifier struct {
	completer TextCompleter
	logger    *log.Logger
}

// NewClassifier creates a classifier backed by the given completer.
func NewClassifier(completer TextCompleter, logger *log.Logger) *Classifier {
	if logger == nil {
		logger = log.New()
	}
	return &Classifier{completer: completer, logger: logger}
}

// FallbackClassification is the guess used when classification cannot be
// performed at all.
func FallbackClassification() domain.ClassificationResult {
	return domain.ClassificationResult{Category: domain.DefaultCategory, Priority: domain.DefaultPriority}
}

// Classify asks the completion service for a structured guess. Failures of
// any kind (transport, credential, unparseable response) yield the fallback.
// Non-empty out-of-vocabulary values from the service pass through verbatim.
func (c *Classifier) Classify(ctx context.Context, title, description string) domain.ClassificationResult {
	raw, err := c.completer.Complete(ctx, classifySystemPrompt, buildClassifyPrompt(title, description))
	if err != nil {
		c.logger.WithError(err).Debug("classification unavailable, using defaults")
		return FallbackClassification()
	}

	var result domain.ClassificationResult
	if err := sonic.Unmarshal([]byte(stripCodeFence(raw)), &result); err != nil {
		c.logger.WithError(err).Debug("unparseable classification response, using defaults")
		return FallbackClassification()
	}

	if result.Category == "" {
		result.Category = domain.DefaultCategory
	} else if len(result.Category) > maxCategoryLen {
		result.Category = result.Category[:maxCategoryLen]
	}
	if result.Priority == "" {
		result.Priority = domain.DefaultPriority
	}
	return result
}

// Summarize produces a short prose summary of the task set. An empty set
// short-circuits without touching the completion service; at most the first
// ten tasks are included to bound prompt size.
func (c *Classifier) Summarize(ctx context.Context, tasks []domain.Task) string {
	if len(tasks) == 0 {
		return EmptyInsights
	}
	if len(tasks) > maxInsightTasks {
		tasks = tasks[:maxInsightTasks]
	}

	text, err := c.completer.Complete(ctx, insightsSystemPrompt, buildInsightsPrompt(tasks))
	if err != nil {
		c.logger.WithError(err).Debug("insight narration unavailable, using fallback")
		return FallbackInsights
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return FallbackInsights
	}
	return text
}

// stripCodeFence removes a surrounding markdown code fence, with or without a
// language tag, so fenced JSON still parses.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 && !strings.Contains(s[:i], "{") {
		s = s[i+1:]
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
