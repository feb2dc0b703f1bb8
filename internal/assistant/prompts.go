package assistant

import (
	"fmt"
	"strings"
)

const (
	// maxFollowUps bounds clarifying questions per turn.
	maxFollowUps = 2

	contextEvidenceLimit = 280
	promptEvidenceLimit  = 400
)

// PlantContext is the compact per-plant summary fed into prompts.
type PlantContext struct {
	ID                   string
	Name                 string
	Category             string
	WateringIntervalDays int
}

// UserContext is the plant portfolio summary for the asking user.
type UserContext struct {
	Plants []PlantContext
}

// followUpRule appends a clarifying question when its trigger fires. Rules run
// in priority order; at most maxFollowUps questions survive.
type followUpRule struct {
	trigger  func(message string, userContext UserContext) bool
	question string
}

var followUpRules = []followUpRule{
	{
		trigger: func(_ string, userContext UserContext) bool {
			return len(userContext.Plants) == 0
		},
		question: "Which plant are you asking about?",
	},
	{
		trigger: func(message string, _ UserContext) bool {
			return strings.Contains(message, "yellow") || strings.Contains(message, "spots")
		},
		question: "How long have you seen these symptoms?",
	},
	{
		trigger: func(message string, _ UserContext) bool {
			return strings.Contains(message, "water")
		},
		question: "What is your current watering frequency?",
	},
}

// FollowUpQuestions determines which clarifying questions the turn needs,
// independent of how the answer is generated.
func FollowUpQuestions(message string, userContext UserContext) []string {
	lowered := strings.ToLower(message)
	var questions []string
	for _, rule := range followUpRules {
		if rule.trigger(lowered, userContext) {
			questions = append(questions, rule.question)
		}
		if len(questions) == maxFollowUps {
			break
		}
	}
	return questions
}

// ExtractPlantName finds the plant the message refers to: a named match among
// the user's plants, else the first plant, else a generic label.
func ExtractPlantName(message string, userContext UserContext) string {
	lowered := strings.ToLower(message)
	for _, plant := range userContext.Plants {
		name := strings.TrimSpace(plant.Name)
		if name != "" && strings.Contains(lowered, strings.ToLower(name)) {
			return name
		}
	}
	if len(userContext.Plants) > 0 && userContext.Plants[0].Name != "" {
		return userContext.Plants[0].Name
	}
	return "your plant"
}

// BuildContextBlock renders the user's plants and retrieved evidence into the
// prompt context section.
func BuildContextBlock(userContext UserContext, retrieved []RetrievedItem) string {
	var plantLines []string
	for _, plant := range userContext.Plants {
		plantLines = append(plantLines, fmt.Sprintf("- %s (%s), watering every %d days",
			plant.Name, plant.Category, plant.WateringIntervalDays))
	}

	var retrievalLines []string
	for _, item := range retrieved {
		retrievalLines = append(retrievalLines, fmt.Sprintf("- %s: %s",
			item.Title, truncate(item.Content, contextEvidenceLimit)))
	}

	contextText := "- No plant context available"
	if len(plantLines) > 0 {
		contextText = strings.Join(plantLines, "\n")
	}
	evidenceText := "- No expert evidence found"
	if len(retrievalLines) > 0 {
		evidenceText = strings.Join(retrievalLines, "\n")
	}

	return "User plants:\n" + contextText + "\n\nExpert evidence:\n" + evidenceText
}

// BuildPrompt assembles the full generation instruction for a turn.
func BuildPrompt(userMessage, contextBlock string, retrieved []RetrievedItem, followUps []string, language string) string {
	var evidenceLines []string
	for _, item := range retrieved {
		if item.Title == "" && item.Content == "" {
			continue
		}
		evidenceLines = append(evidenceLines, fmt.Sprintf("- %s: %s",
			item.Title, truncate(item.Content, promptEvidenceLimit)))
	}
	evidenceText := "- none"
	if len(evidenceLines) > 0 {
		evidenceText = strings.Join(evidenceLines, "\n")
	}

	followUpText := "- none"
	if len(followUps) > 0 {
		var lines []string
		for _, question := range followUps {
			lines = append(lines, "- "+question)
		}
		followUpText = strings.Join(lines, "\n")
	}

	languageInstruction := ""
	switch language {
	case "he":
		languageInstruction = "IMPORTANT: Respond in Hebrew language. All your answers must be in Hebrew.\n"
	case "en":
		languageInstruction = "IMPORTANT: Respond in English language.\n"
	}

	return "You are an AI gardening assistant.\n" +
		languageInstruction +
		"Rules:\n" +
		"1) Give practical, safe gardening advice only.\n" +
		"2) If data is missing, ask concise follow-up questions.\n" +
		"3) Avoid dangerous chemical instructions and overconfident claims.\n" +
		"4) Personalize using user context and evidence.\n" +
		"5) Answer directly (not generic template).\n\n" +
		"6) Keep responses concise (5-10 lines) unless user asks for full detail.\n\n" +
		"User context:\n" + contextBlock + "\n\n" +
		"Retrieved evidence:\n" + evidenceText + "\n\n" +
		"Suggested follow-up candidates:\n" + followUpText + "\n\n" +
		"User question: " + userMessage + "\n\n" +
		"Return plain text with:\n" +
		"- Direct answer\n" +
		"- Action steps\n" +
		"- Caution note if needed\n" +
		"- Follow-up question only when necessary"
}

func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	return text[:limit]
}
