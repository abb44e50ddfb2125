package prompts

import "testing"

func TestForSessionUsesProvidedPrompt(t *testing.T) {
	if got := ForSession("be a pirate"); got != "be a pirate" {
		t.Errorf("ForSession() = %q, want %q", got, "be a pirate")
	}
}

func TestForSessionFallsBackToDefault(t *testing.T) {
	if got := ForSession(""); got != DefaultSystem {
		t.Errorf("ForSession(\"\") = %q, want %q", got, DefaultSystem)
	}
}
