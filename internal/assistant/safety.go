package assistant

import "strings"

// SafeResponse is the canned reply returned for blocked messages.
const SafeResponse = "I can’t help with unsafe or harmful gardening instructions. I can help with safe plant care alternatives instead."

// PostValidationFallback replaces answers that fail post-validation.
const PostValidationFallback = "I can help with safe and practical plant-care steps. Please share your plant type and symptoms for a safe recommendation."

// unsafeKeywords is the ordered substring rule table for inbound messages.
// Each matching keyword becomes a safety flag.
var unsafeKeywords = []string{
	"poison",
	"bleach",
	"acid",
	"harm",
	"kill animal",
	"kill pet",
	"toxic gas",
}

// SafetyVerdict is the outcome of inbound safety classification.
type SafetyVerdict struct {
	Blocked bool
	Flags   []string
}

// ClassifySafety runs the unsafe-keyword rules against the message.
// Any match blocks the turn.
func ClassifySafety(userText string) SafetyVerdict {
	lowered := strings.ToLower(userText)
	var flags []string
	for _, keyword := range unsafeKeywords {
		if strings.Contains(lowered, keyword) {
			flags = append(flags, keyword)
		}
	}
	return SafetyVerdict{Blocked: len(flags) > 0, Flags: flags}
}

// postValidationRule flags a generated answer that matches every listed needle.
type postValidationRule struct {
	needles []string
	flag    string
}

var postValidationRules = []postValidationRule{
	{needles: []string{"guaranteed"}, flag: "overconfident_claim"},
	{needles: []string{"drink", "pesticide"}, flag: "dangerous_instruction"},
}

// PostValidation is the outcome of scanning a generated answer.
type PostValidation struct {
	OK    bool
	Flags []string
}

// PostValidateResponse scans the answer for overconfident or dangerous
// patterns before it is logged as assistant content.
func PostValidateResponse(answer string) PostValidation {
	lowered := strings.ToLower(answer)
	var flags []string
	for _, rule := range postValidationRules {
		matched := true
		for _, needle := range rule.needles {
			if !strings.Contains(lowered, needle) {
				matched = false
				break
			}
		}
		if matched {
			flags = append(flags, rule.flag)
		}
	}
	return PostValidation{OK: len(flags) == 0, Flags: flags}
}
