package prp

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Stage tags a checkpoint's position in a subtask's pipeline. The order
// listed here is the order stage transitions are expected to follow, with
// fix-attempt-n and cancelled being the only permitted regressions.
type Stage string

const (
	StagePreExecution    Stage = "pre-execution"
	StageCoderResponse   Stage = "coder-response"
	StageValidationGate1 Stage = "validation-gate-1"
	StageValidationGate2 Stage = "validation-gate-2"
	StageValidationGate3 Stage = "validation-gate-3"
	StageValidationGate4 Stage = "validation-gate-4"
	StageCancelled       Stage = "cancelled"
)

// ValidationGateStage returns the Stage tag for the nth gate (1-indexed).
func ValidationGateStage(n int) Stage {
	return Stage(fmt.Sprintf("validation-gate-%d", n))
}

// CheckpointError records why a stage failed, if it did.
type CheckpointError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ValidationResult is one gate's recorded outcome within a checkpoint.
type ValidationResult struct {
	Gate    string `json:"gate"`
	Passed  bool   `json:"passed"`
	Command string `json:"command,omitempty"`
	Output  string `json:"output,omitempty"`
}

// CheckpointState is the stage-specific snapshot a checkpoint carries.
type CheckpointState struct {
	PRPPath           string             `json:"prpPath,omitempty"`
	Stage             Stage              `json:"stage"`
	CoderResponse     string             `json:"coderResponse,omitempty"`
	CoderResult       string             `json:"coderResult,omitempty"`
	ValidationResults []ValidationResult `json:"validationResults,omitempty"`
	FixAttempt        int                `json:"fixAttempt,omitempty"`
	Timestamp         time.Time          `json:"timestamp"`
}

// Checkpoint is one entry in a subtask's checkpoints.json.
type Checkpoint struct {
	ID        string           `json:"id"`
	TaskID    string           `json:"taskId"`
	Label     string           `json:"label"`
	State     CheckpointState  `json:"state"`
	Error     *CheckpointError `json:"error,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
}

// checkpointFileVersion is written into every checkpoints.json document.
const checkpointFileVersion = "1"

// checkpointFile is the on-disk shape of artifacts/<id>/checkpoints.json.
type checkpointFile struct {
	Version      string       `json:"version"`
	Checkpoints  []Checkpoint `json:"checkpoints"`
	LastModified time.Time    `json:"lastModified"`
}

// DefaultCheckpointRetention is how many checkpoints are kept per subtask,
// oldest pruned first on save.
const DefaultCheckpointRetention = 10

// CheckpointManager writes and prunes per-subtask checkpoint files under a
// session's artifacts directory. Grounded on the prior
// internal/loop/record.go (SaveRecord/LoadRecord audit-record persistence)
// and internal/memory/progress.go's EnforceMaxSize pruning technique,
// generalized from one record per iteration to a retained ring of stage
// snapshots per subtask.
type CheckpointManager struct {
	dir       string
	retention int
}

// NewCheckpointManager returns a manager rooted at dir (a session's
// artifacts directory, holding one subdirectory per subtask id).
func NewCheckpointManager(dir string) *CheckpointManager {
	return &CheckpointManager{dir: dir, retention: DefaultCheckpointRetention}
}

// SetRetention overrides the per-subtask checkpoint retention count.
func (m *CheckpointManager) SetRetention(n int) {
	if n > 0 {
		m.retention = n
	}
}

func (m *CheckpointManager) path(taskID string) string {
	return filepath.Join(m.dir, taskID, "checkpoints.json")
}

// Append records a new checkpoint for taskID, pruning the oldest entries
// beyond the retention limit. The write is atomic via rename, matching the
// session document's write protocol.
func (m *CheckpointManager) Append(taskID string, state CheckpointState, chkErr *CheckpointError) (*Checkpoint, error) {
	cp := Checkpoint{
		ID:        uuid.New().String()[:8],
		TaskID:    taskID,
		Label:     string(state.Stage),
		State:     state,
		Error:     chkErr,
		CreatedAt: time.Now(),
	}

	file, err := m.load(taskID)
	if err != nil {
		return nil, err
	}
	file.Checkpoints = append(file.Checkpoints, cp)
	if len(file.Checkpoints) > m.retention {
		file.Checkpoints = file.Checkpoints[len(file.Checkpoints)-m.retention:]
	}
	file.Version = checkpointFileVersion
	file.LastModified = cp.CreatedAt

	if err := m.save(taskID, file); err != nil {
		return nil, err
	}
	return &cp, nil
}

// Load returns every retained checkpoint for taskID, oldest first.
func (m *CheckpointManager) Load(taskID string) ([]Checkpoint, error) {
	file, err := m.load(taskID)
	if err != nil {
		return nil, err
	}
	return file.Checkpoints, nil
}

func (m *CheckpointManager) load(taskID string) (*checkpointFile, error) {
	raw, err := os.ReadFile(m.path(taskID))
	if err != nil {
		if os.IsNotExist(err) {
			return &checkpointFile{Version: checkpointFileVersion}, nil
		}
		return nil, fmt.Errorf("prp: reading checkpoints: %w", err)
	}
	var file checkpointFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("prp: unmarshaling checkpoints: %w", err)
	}
	return &file, nil
}

func (m *CheckpointManager) save(taskID string, file *checkpointFile) error {
	dir := filepath.Join(m.dir, taskID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("prp: creating artifacts directory: %w", err)
	}
	raw, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("prp: marshaling checkpoints: %w", err)
	}
	tmp := m.path(taskID) + ".tmp"
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		return fmt.Errorf("prp: writing checkpoints: %w", err)
	}
	return os.Rename(tmp, m.path(taskID))
}
