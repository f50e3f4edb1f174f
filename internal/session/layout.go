package session

import (
	"fmt"
	"path/filepath"
)

// Directory names for the .forge plan-root structure, mirroring the
// teacher's .ralph directory taxonomy (internal/state/state.go) but rooted
// at a collection of sessions rather than a single working copy.
const (
	ForgeDir        = ".forge"
	SessionsDir     = "sessions"
	StateDir        = "state"
	LogsDir         = "logs"
	AgentLogsDir    = "agents"
	ArchiveDir      = "archive"
	CurrentPointer  = "current-session"
	PausedFile      = "paused"
	TasksFile       = "tasks.json"
	MetaFile        = "meta.json"
	PRDSnapshotFile = "prd.md"
)

// SchemaVersion is the tasks.json document's schema version, checked via
// Masterminds/semver against the version a loaded document declares.
const SchemaVersion = "1.0.0"

func ForgeDirPath(root string) string        { return filepath.Join(root, ForgeDir) }
func SessionsDirPath(root string) string     { return filepath.Join(root, ForgeDir, SessionsDir) }
func StateDirPath(root string) string        { return filepath.Join(root, ForgeDir, StateDir) }
func LogsDirPath(root string) string         { return filepath.Join(root, ForgeDir, LogsDir) }
func AgentLogsDirPath(root string) string    { return filepath.Join(root, ForgeDir, LogsDir, AgentLogsDir) }
func ArchiveDirPath(root string) string      { return filepath.Join(root, ForgeDir, ArchiveDir) }
func CurrentPointerPath(root string) string  { return filepath.Join(root, ForgeDir, StateDir, CurrentPointer) }
func PausedFilePath(root string) string      { return filepath.Join(root, ForgeDir, StateDir, PausedFile) }

// DirName builds the content-addressed directory name for a session:
// <seq>_<hash12>.
func DirName(seq int, hash12 string) string {
	return fmt.Sprintf("%03d_%s", seq, hash12)
}
