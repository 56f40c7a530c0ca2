package api

import (
	"context"

	"taskpilot-api/domain"
)

// resolveTaskFields decides the category and priority for a task mutation.
// Explicit user values always win; the classifier fills the gaps; hard
// defaults cover whatever is still missing. The classifier is not invoked
// when the caller supplied both fields.
func resolveTaskFields(ctx context.Context, classifier Classifier, title, description string, category *string, priority *domain.Priority) (string, domain.Priority) {
	if category != nil && priority != nil {
		return *category, *priority
	}

	guess := classifier.Classify(ctx, title, description)

	resolvedCategory := domain.DefaultCategory
	if category != nil {
		resolvedCategory = *category
	} else if guess.Category != "" {
		resolvedCategory = guess.Category
	}

	resolvedPriority := domain.DefaultPriority
	if priority != nil {
		resolvedPriority = *priority
	} else if guess.Priority != "" {
		resolvedPriority = guess.Priority
	}

	return resolvedCategory, resolvedPriority
}
