package assistant

import "strings"

// Intent is the coarse topic bucket a message falls into.
type Intent string

const (
	IntentGrowth     Intent = "growth"
	IntentDisease    Intent = "disease"
	IntentWatering   Intent = "watering"
	IntentFertilizer Intent = "fertilizer"
	IntentSunlight   Intent = "sunlight"
	IntentGeneral    Intent = "general"
)

// intentRule maps trigger tokens to an intent. Rules are checked in order and
// the first match wins.
type intentRule struct {
	tokens []string
	intent Intent
}

var intentRules = []intentRule{
	{tokens: []string{"height", "tall", "grow", "size"}, intent: IntentGrowth},
	{tokens: []string{"yellow", "spot", "disease", "fung", "mildew", "rot", "brown"}, intent: IntentDisease},
	{tokens: []string{"water", "watering", "dry", "overwater"}, intent: IntentWatering},
	{tokens: []string{"fertiliz", "nutrient", "feed", "npk"}, intent: IntentFertilizer},
	{tokens: []string{"sun", "light", "shade"}, intent: IntentSunlight},
}

// DetectIntent classifies the message into one topic bucket.
func DetectIntent(message string) Intent {
	text := strings.ToLower(message)
	for _, rule := range intentRules {
		for _, token := range rule.tokens {
			if strings.Contains(text, token) {
				return rule.intent
			}
		}
	}
	return IntentGeneral
}
