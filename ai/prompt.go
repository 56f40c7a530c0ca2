package ai

import (
	"strconv"
	"strings"

	"taskpilot-api/domain"
)

const classifySystemPrompt = `You are a task classification assistant.

You receive one task (title plus optional description) and return ONLY a valid
JSON object, with no text outside it:

{"category": string, "priority": "low"|"medium"|"high", "suggestedDueDate": "YYYY-MM-DD"}

category must be one of: work, personal, shopping, health, learning, finance,
home, social, travel, uncategorized.
suggestedDueDate is optional; include it only when the task text implies a
concrete date. Never invent missing information.`

const insightsSystemPrompt = `You are a productivity assistant. You receive a
numbered list of a user's tasks and reply with a short, actionable summary of
at most 3 sentences. Plain prose only, no lists, no JSON.`

func buildClassifyPrompt(title, description string) string {
	var b strings.Builder
	b.WriteString("title: ")
	b.WriteString(title)
	b.WriteString("\n")
	if description != "" {
		b.WriteString("description: ")
		b.WriteString(description)
		b.WriteString("\n")
	}
	return b.String()
}

func buildInsightsPrompt(tasks []domain.Task) string {
	var b strings.Builder
	b.WriteString("Tasks:\n")
	for i, t := range tasks {
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(". ")
		b.WriteString(t.Title)
		b.WriteString(" [")
		b.WriteString(t.Category)
		b.WriteString("/")
		b.WriteString(string(t.Priority))
		if t.Completed {
			b.WriteString(", done")
		} else if t.DueDate != nil {
			b.WriteString(", due ")
			b.WriteString(t.DueDate.Format("2006-01-02"))
		}
		b.WriteString("]\n")
	}
	return b.String()
}
