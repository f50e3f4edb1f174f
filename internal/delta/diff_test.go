package delta

import "testing"

func TestParseSections(t *testing.T) {
	prd := "Intro text\n\n## Goals\n\nDo the thing.\n\n## Non-goals\n\nSkip the other thing.\n"
	sections := ParseSections(prd)
	if len(sections) != 3 {
		t.Fatalf("got %d sections, want 3", len(sections))
	}
	if sections[1].Heading != "Goals" || sections[1].Body != "Do the thing." {
		t.Errorf("unexpected section 1: %+v", sections[1])
	}
}

func TestCompareSectionsUnchangedAndModified(t *testing.T) {
	oldPRD := "## Goals\n\nShip the widget.\n\n## Risks\n\nNone.\n"
	newPRD := "## Goals\n\nShip the widget with extra chrome.\n\n## Risks\n\nNone.\n"

	changes := CompareSections(oldPRD, newPRD)
	byHeading := map[string]ChangeKind{}
	for _, c := range changes {
		byHeading[c.Heading] = c.Kind
	}
	if byHeading["Goals"] != Modified {
		t.Errorf("Goals kind = %s, want modified", byHeading["Goals"])
	}
	if byHeading["Risks"] != Unchanged {
		t.Errorf("Risks kind = %s, want unchanged", byHeading["Risks"])
	}
}

func TestCompareSectionsAddedRemoved(t *testing.T) {
	oldPRD := "## Goals\n\nShip it.\n\n## Deprecated\n\nOld stuff.\n"
	newPRD := "## Goals\n\nShip it.\n\n## Security\n\nNew section.\n"

	changes := CompareSections(oldPRD, newPRD)
	byHeading := map[string]ChangeKind{}
	for _, c := range changes {
		byHeading[c.Heading] = c.Kind
	}
	if byHeading["Deprecated"] != Removed {
		t.Errorf("Deprecated kind = %s, want removed", byHeading["Deprecated"])
	}
	if byHeading["Security"] != Added {
		t.Errorf("Security kind = %s, want added", byHeading["Security"])
	}
}

func TestTitleSurvives(t *testing.T) {
	if !TitleSurvives("Add login rate limiting", "Login rate limiting") {
		t.Error("expected overlapping title to survive")
	}
	if TitleSurvives("Add login rate limiting", "Completely unrelated billing export feature") {
		t.Error("expected unrelated title not to survive")
	}
}
