package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// DualSessionState tracks the separate researcher and coder agent-session
// ids for one subtask, so re-prompting on retry can continue the
// appropriate underlying conversation rather than starting cold. Grounded
// on internal/claude/session.go's SessionState, generalized from a single
// Planner/Coder pair to the researcher/coder role names this module uses.
type DualSessionState struct {
	ResearcherSessionID string    `json:"researcherSessionId,omitempty"`
	CoderSessionID      string    `json:"coderSessionId,omitempty"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// SessionFor returns the tracked session id for role.
func (s *DualSessionState) SessionFor(role Role) string {
	switch role {
	case RoleResearcher:
		return s.ResearcherSessionID
	case RoleCoder:
		return s.CoderSessionID
	default:
		return ""
	}
}

// SetSessionFor records a new session id for role and bumps UpdatedAt.
func (s *DualSessionState) SetSessionFor(role Role, id string) {
	switch role {
	case RoleResearcher:
		s.ResearcherSessionID = id
	case RoleCoder:
		s.CoderSessionID = id
	}
	s.UpdatedAt = time.Now()
}

// Forked reports whether newID indicates the agent CLI started a new
// conversation instead of continuing the one at currentID (both must be
// non-empty and differ).
func Forked(currentID, newID string) bool {
	return currentID != "" && newID != "" && currentID != newID
}

// LoadDualSessionState reads a persisted DualSessionState from path,
// returning a zero-value state if the file does not yet exist.
func LoadDualSessionState(path string) (*DualSessionState, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &DualSessionState{}, nil
		}
		return nil, fmt.Errorf("agent: reading session state: %w", err)
	}
	var s DualSessionState
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("agent: parsing session state: %w", err)
	}
	return &s, nil
}

// SaveDualSessionState atomically persists s to path.
func SaveDualSessionState(path string, s *DualSessionState) error {
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("agent: marshaling session state: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		return fmt.Errorf("agent: writing session state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("agent: renaming session state: %w", err)
	}
	return nil
}
