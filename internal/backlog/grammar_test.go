package backlog

import "testing"

func TestLevelOf(t *testing.T) {
	cases := map[string]Level{
		"P1":           LevelPhase,
		"P1.M2":        LevelMilestone,
		"P1.M2.T3":     LevelTask,
		"P1.M2.T3.S4":  LevelSubtask,
	}
	for id, want := range cases {
		got, err := LevelOf(id)
		if err != nil {
			t.Fatalf("LevelOf(%q) returned error: %v", id, err)
		}
		if got != want {
			t.Errorf("LevelOf(%q) = %q, want %q", id, got, want)
		}
	}
}

func TestLevelOfInvalid(t *testing.T) {
	for _, id := range []string{"", "X1", "P1.M", "P1.M2.T3.S4.X5"} {
		if _, err := LevelOf(id); err == nil {
			t.Errorf("LevelOf(%q) expected error, got nil", id)
		}
	}
}

func TestParentIDOf(t *testing.T) {
	cases := map[string]string{
		"P1":          "",
		"P1.M2":       "P1",
		"P1.M2.T3":    "P1.M2",
		"P1.M2.T3.S4": "P1.M2.T3",
	}
	for id, want := range cases {
		if got := ParentIDOf(id); got != want {
			t.Errorf("ParentIDOf(%q) = %q, want %q", id, got, want)
		}
	}
}

func TestMatchesScope(t *testing.T) {
	if !MatchesScope("P1.M2.T3", "") {
		t.Error("empty scope should match everything")
	}
	if !MatchesScope("P1.M2", "P1.M2") {
		t.Error("exact match should match")
	}
	if !MatchesScope("P1.M2.T3", "P1.M2") {
		t.Error("descendant should match ancestor scope")
	}
	if MatchesScope("P1.M3", "P1.M2") {
		t.Error("sibling should not match")
	}
	if MatchesScope("P10", "P1") {
		t.Error("P10 must not match scope P1 (prefix must respect dot boundary)")
	}
}

func TestValidateScope(t *testing.T) {
	for _, good := range []string{"", "P1", "P1.M2", "P1.M2.T3", "P1.M2.T3.S4"} {
		if err := ValidateScope(good); err != nil {
			t.Errorf("ValidateScope(%q) unexpected error: %v", good, err)
		}
	}
	for _, bad := range []string{"P", "M1", "P1.T2"} {
		if err := ValidateScope(bad); err == nil {
			t.Errorf("ValidateScope(%q) expected error", bad)
		}
	}
}
