package assistant

import "testing"

func TestClassifySafetyBlocksUnsafeKeywords(t *testing.T) {
	cases := []struct {
		message string
		flag    string
	}{
		{"Can I use bleach to clean the leaves?", "bleach"},
		{"Is this plant poison to cats?", "poison"},
		{"Will this kill pet fish in the pond?", "kill pet"},
		{"Does mixing these create toxic gas?", "toxic gas"},
	}

	for _, tc := range cases {
		verdict := ClassifySafety(tc.message)
		if !verdict.Blocked {
			t.Fatalf("expected %q to be blocked", tc.message)
		}
		found := false
		for _, flag := range verdict.Flags {
			if flag == tc.flag {
				found = true
			}
		}
		if !found {
			t.Fatalf("expected flag %q for %q, got %v", tc.flag, tc.message, verdict.Flags)
		}
	}
}

func TestClassifySafetyIsCaseInsensitive(t *testing.T) {
	if !ClassifySafety("Should I use BLEACH?").Blocked {
		t.Fatalf("expected uppercase keyword to be blocked")
	}
}

func TestClassifySafetyAllowsBenignMessages(t *testing.T) {
	verdict := ClassifySafety("Why are my basil leaves turning yellow?")
	if verdict.Blocked {
		t.Fatalf("expected benign message to pass, flags: %v", verdict.Flags)
	}
	if len(verdict.Flags) != 0 {
		t.Fatalf("expected no flags, got %v", verdict.Flags)
	}
}

func TestClassifySafetyCollectsMultipleFlags(t *testing.T) {
	verdict := ClassifySafety("can bleach or acid harm my plant")
	if len(verdict.Flags) != 3 {
		t.Fatalf("expected three flags, got %v", verdict.Flags)
	}
}

func TestPostValidateFlagsOverconfidentClaims(t *testing.T) {
	validation := PostValidateResponse("This treatment is guaranteed to work.")
	if validation.OK {
		t.Fatalf("expected validation failure")
	}
	if len(validation.Flags) != 1 || validation.Flags[0] != "overconfident_claim" {
		t.Fatalf("unexpected flags: %v", validation.Flags)
	}
}

func TestPostValidateFlagsDangerousInstructions(t *testing.T) {
	validation := PostValidateResponse("Drink plenty of water after applying the pesticide.")
	if validation.OK {
		t.Fatalf("expected validation failure")
	}
	if validation.Flags[0] != "dangerous_instruction" {
		t.Fatalf("unexpected flags: %v", validation.Flags)
	}
}

func TestPostValidateRequiresAllNeedles(t *testing.T) {
	validation := PostValidateResponse("Apply the pesticide in the evening.")
	if !validation.OK {
		t.Fatalf("expected single-needle match to pass, flags: %v", validation.Flags)
	}
}

func TestPostValidatePassesCleanAnswer(t *testing.T) {
	validation := PostValidateResponse("Water deeply once a week and improve drainage.")
	if !validation.OK {
		t.Fatalf("expected clean answer to pass, flags: %v", validation.Flags)
	}
}
