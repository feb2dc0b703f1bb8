package assistant

import (
	"context"
	"regexp"
	"strings"
)

// Model tags recorded on audit rows per generation path.
const (
	ModelNameRemote   = "gemini_rag_v1"
	ModelNameTemplate = "rule_rag_v1"
)

const evidenceSnippetLimit = 220

// GenerateRequest carries everything a generation strategy may use.
type GenerateRequest struct {
	UserMessage  string
	ContextBlock string
	UserContext  UserContext
	Retrieved    []RetrievedItem
	FollowUps    []string
	Language     string
}

// Generator produces an answer for a turn. Implementations report failure via
// the error; the orchestrator recovers by falling back to the template
// strategy, so a failing Generator never degrades the user experience.
type Generator interface {
	Generate(ctx context.Context, request GenerateRequest) (string, error)
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// TemplateGenerator is the deterministic fallback strategy. It selects a
// response skeleton by detected intent and interpolates the plant name, the
// top evidence snippet, and outstanding follow-up questions. Total; never
// returns an error.
type TemplateGenerator struct{}

// NewTemplateGenerator constructs the deterministic strategy.
func NewTemplateGenerator() *TemplateGenerator {
	return &TemplateGenerator{}
}

// Generate renders the templated answer.
func (g *TemplateGenerator) Generate(_ context.Context, request GenerateRequest) (string, error) {
	intent := DetectIntent(request.UserMessage)
	plantName := ExtractPlantName(request.UserMessage, request.UserContext)

	lines := []string{"Here’s focused guidance for " + plantName + "."}

	switch intent {
	case IntentGrowth:
		if strings.Contains(strings.ToLower(request.UserMessage), "aloe") {
			lines = append(lines, "Aloe vera is usually about 30-60 cm tall indoors, and can reach around 60-100 cm in ideal outdoor conditions.")
		} else {
			lines = append(lines, "Plant height depends on variety, pot size, light, and nutrient availability.")
		}
		lines = append(lines, "To support healthy growth: provide enough light, avoid overwatering, and repot when roots are crowded.")
	case IntentDisease:
		lines = append(lines,
			"For leaf symptoms, isolate the plant, remove heavily affected leaves, and improve airflow.",
			"Avoid wetting leaves during watering and monitor spread over the next 3-5 days.")
	case IntentWatering:
		lines = append(lines,
			"Water only when the top 2-3 cm of soil feels dry, not by fixed daily timing.",
			"Ensure pot drainage and empty standing water from saucers.")
	case IntentFertilizer:
		lines = append(lines,
			"Use a balanced fertilizer at reduced strength during active growth, then pause or reduce in winter.",
			"Do not fertilize dry soil; water lightly first.")
	case IntentSunlight:
		lines = append(lines,
			"Most houseplants prefer bright indirect light; avoid sudden full-sun exposure changes.",
			"Rotate the pot weekly for even growth.")
	default:
		lines = append(lines, "Share the exact plant name and symptom (yellow leaves, spots, drooping, pests), and I’ll give a precise care plan.")
	}

	if len(request.Retrieved) > 0 {
		evidence := strings.TrimSpace(whitespaceRun.ReplaceAllString(request.Retrieved[0].Content, " "))
		if evidence != "" {
			lines = append(lines, "Expert tip: "+truncate(evidence, evidenceSnippetLimit))
		}
	}

	if len(request.FollowUps) > 0 {
		lines = append(lines, "Before I finalize a strong recommendation, please answer:")
		for _, question := range request.FollowUps {
			lines = append(lines, "- "+question)
		}
	}

	lines = append(lines, "If symptoms worsen quickly, share a close leaf photo and recent watering pattern.")
	return strings.Join(lines, "\n"), nil
}
