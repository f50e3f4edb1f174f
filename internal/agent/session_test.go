package agent

import (
	"path/filepath"
	"testing"
)

func TestDualSessionStateRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.json")

	s, err := LoadDualSessionState(path)
	if err != nil {
		t.Fatalf("LoadDualSessionState: %v", err)
	}
	if s.ResearcherSessionID != "" {
		t.Error("expected empty state for missing file")
	}

	s.SetSessionFor(RoleResearcher, "sess-r1")
	s.SetSessionFor(RoleCoder, "sess-c1")
	if err := SaveDualSessionState(path, s); err != nil {
		t.Fatalf("SaveDualSessionState: %v", err)
	}

	reloaded, err := LoadDualSessionState(path)
	if err != nil {
		t.Fatalf("LoadDualSessionState after save: %v", err)
	}
	if reloaded.SessionFor(RoleResearcher) != "sess-r1" {
		t.Errorf("researcher session = %q, want sess-r1", reloaded.SessionFor(RoleResearcher))
	}
	if reloaded.SessionFor(RoleCoder) != "sess-c1" {
		t.Errorf("coder session = %q, want sess-c1", reloaded.SessionFor(RoleCoder))
	}
}

func TestForked(t *testing.T) {
	if Forked("", "a") {
		t.Error("empty current id should not count as forked")
	}
	if !Forked("a", "b") {
		t.Error("differing non-empty ids should count as forked")
	}
	if Forked("a", "a") {
		t.Error("identical ids should not count as forked")
	}
}
