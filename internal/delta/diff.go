// Package delta implements deterministic PRD delta analysis: given an old
// and a new PRD snapshot, it classifies which "## "-headed sections changed,
// and which previously-known subtask titles still appear to be addressed by
// surviving section text. This is the accepted resolution to the
// delta-session Open Question: a deterministic line/heading diff instead of
// an LLM round-trip.
package delta

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Section is one "## "-headed block of a PRD.
type Section struct {
	Heading string
	Body    string
}

// ParseSections splits prd into its "## " top-level sections. Content
// before the first "## " heading is returned under the heading "".
func ParseSections(prd string) []Section {
	lines := strings.Split(prd, "\n")
	var sections []Section
	cur := Section{Heading: ""}
	var body strings.Builder

	flush := func() {
		cur.Body = strings.TrimSpace(body.String())
		sections = append(sections, cur)
		body.Reset()
	}
	for _, line := range lines {
		if strings.HasPrefix(line, "## ") {
			flush()
			cur = Section{Heading: strings.TrimSpace(strings.TrimPrefix(line, "## "))}
			continue
		}
		body.WriteString(line)
		body.WriteString("\n")
	}
	flush()
	return sections
}

// ChangeKind classifies how a PRD section changed between two snapshots.
type ChangeKind string

const (
	Unchanged ChangeKind = "unchanged"
	Modified  ChangeKind = "modified"
	Added     ChangeKind = "added"
	Removed   ChangeKind = "removed"
)

// SectionChange reports how one heading's content changed.
type SectionChange struct {
	Heading string
	Kind    ChangeKind
}

// CompareSections diffs the section sets of two PRD snapshots using
// sergi/go-diff's line-level Myers diff to decide whether a shared
// heading's body actually changed, rather than a naive string ==.
func CompareSections(oldPRD, newPRD string) []SectionChange {
	oldSections := indexByHeading(ParseSections(oldPRD))
	newSections := indexByHeading(ParseSections(newPRD))

	dmp := diffmatchpatch.New()
	var changes []SectionChange

	seen := make(map[string]bool)
	for heading, oldBody := range oldSections {
		seen[heading] = true
		newBody, ok := newSections[heading]
		if !ok {
			changes = append(changes, SectionChange{Heading: heading, Kind: Removed})
			continue
		}
		if oldBody == newBody {
			changes = append(changes, SectionChange{Heading: heading, Kind: Unchanged})
			continue
		}
		diffs := dmp.DiffMain(oldBody, newBody, false)
		if onlyEquals(diffs) {
			changes = append(changes, SectionChange{Heading: heading, Kind: Unchanged})
		} else {
			changes = append(changes, SectionChange{Heading: heading, Kind: Modified})
		}
	}
	for heading := range newSections {
		if !seen[heading] {
			changes = append(changes, SectionChange{Heading: heading, Kind: Added})
		}
	}
	return changes
}

func onlyEquals(diffs []diffmatchpatch.Diff) bool {
	for _, d := range diffs {
		if d.Type != diffmatchpatch.DiffEqual {
			return false
		}
	}
	return true
}

func indexByHeading(sections []Section) map[string]string {
	out := make(map[string]string, len(sections))
	for _, s := range sections {
		out[s.Heading] = s.Body
	}
	return out
}

// tokenize lowercases and splits on non-alphanumeric runs, for the Jaccard
// overlap used by MatchTitle.
func tokenize(s string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// jaccard computes the token-set overlap ratio between a and b.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// MatchThreshold is the minimum Jaccard token overlap for TitleSurvives to
// consider a subtask title still addressed by a section's new text.
const MatchThreshold = 0.6

// TitleSurvives reports whether title's tokens overlap sufficiently with
// sectionText to be considered still-addressed after a PRD edit (fuzzy id
// recovery for carrying forward subtasks across a delta session).
func TitleSurvives(title, sectionText string) bool {
	return jaccard(tokenize(title), tokenize(sectionText)) >= MatchThreshold
}
