package convo

import "testing"

func TestHistoryPinsSystemPromptAtIndexZero(t *testing.T) {
	h := NewHistory("be concise")
	h.AppendUser("hi")

	snap := h.Snapshot()
	if snap[0].Role != "system" || snap[0].Content != "be concise" {
		t.Fatalf("snap[0] = %+v, want pinned system message", snap[0])
	}
	if snap[1].Role != "user" || snap[1].Content != "hi" {
		t.Fatalf("snap[1] = %+v, want the user turn", snap[1])
	}
}

func TestHistoryTrimsFromFrontWhenOverCapacity(t *testing.T) {
	h := NewHistory("sys")
	for i := 0; i < MaxHistoryLength+5; i++ {
		h.AppendUser("turn")
	}

	snap := h.Snapshot()
	// system message + capped window
	if len(snap) != MaxHistoryLength+1 {
		t.Fatalf("len(snap) = %d, want %d", len(snap), MaxHistoryLength+1)
	}
}

func TestHistoryTrimKeepsMostRecentTurns(t *testing.T) {
	h := NewHistory("sys")
	for i := 0; i < MaxHistoryLength; i++ {
		h.AppendUser("old")
	}
	h.AppendAssistant("newest")

	snap := h.Snapshot()
	last := snap[len(snap)-1]
	if last.Content != "newest" {
		t.Errorf("most recent turn should survive the trim, got %q", last.Content)
	}
	if len(snap) != MaxHistoryLength+1 {
		t.Fatalf("len(snap) = %d, want %d", len(snap), MaxHistoryLength+1)
	}
}
