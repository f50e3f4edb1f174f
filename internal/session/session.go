// Package session implements the Session Manager: content-addressed session
// directories keyed by a hash of the PRD that produced them, atomic batched
// persistence of the backlog document, and delta-session creation when a
// PRD changes.
package session

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/autoforge/autoforge/internal/backlog"
)

// Meta is the session's meta.json document: provenance for the backlog it
// carries.
type Meta struct {
	RunID         string    `json:"runId"`
	Seq           int       `json:"seq"`
	PRDHash       string    `json:"prdHash"`
	SchemaVersion string    `json:"schemaVersion"`
	ParentSession string    `json:"parentSession,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// document is the on-disk shape of tasks.json: the backlog plus the schema
// version it was written with.
type document struct {
	SchemaVersion string                   `json:"schemaVersion"`
	Items         map[string]*backlog.Item `json:"items"`
	Children      map[string][]string      `json:"children"`
}

// Session is one content-addressed working set: a directory under
// .forge/sessions holding meta.json, prd.md, and tasks.json, plus the
// in-memory batched-update state layered over the persisted backlog.
type Session struct {
	Dir  string
	Meta Meta

	log zerolog.Logger

	mu      sync.Mutex
	backlog *backlog.Backlog
	dirty   map[string]bool
	pending int
}

// HashPRD returns the 12-hex-character content address for prd bytes.
func HashPRD(prd []byte) string {
	sum := sha256.Sum256(prd)
	return hex.EncodeToString(sum[:])[:12]
}

// Manager creates, loads, and tracks the current session under a plan root.
type Manager struct {
	root string
	log  zerolog.Logger
}

// NewManager returns a Manager rooted at root (the directory containing, or
// to contain, .forge/).
func NewManager(root string, log zerolog.Logger) *Manager {
	return &Manager{root: root, log: log}
}

// EnsureLayout creates the .forge directory taxonomy if missing.
func (m *Manager) EnsureLayout() error {
	if _, err := os.Stat(m.root); os.IsNotExist(err) {
		return fmt.Errorf("session: plan root does not exist: %s", m.root)
	}
	dirs := []string{
		ForgeDirPath(m.root),
		SessionsDirPath(m.root),
		StateDirPath(m.root),
		LogsDirPath(m.root),
		AgentLogsDirPath(m.root),
		ArchiveDirPath(m.root),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("session: creating %s: %w", dir, err)
		}
	}
	return nil
}

// nextSeq scans existing session directories and returns one past the
// highest sequence number found (0 if none exist).
func (m *Manager) nextSeq() (int, error) {
	entries, err := os.ReadDir(SessionsDirPath(m.root))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("session: listing sessions: %w", err)
	}
	max := -1
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		parts := strings.SplitN(e.Name(), "_", 2)
		if len(parts) != 2 {
			continue
		}
		seq, err := strconv.Atoi(parts[0])
		if err != nil {
			continue
		}
		if seq > max {
			max = seq
		}
	}
	return max + 1, nil
}

// FindByHash scans existing session directories under the plan root for one
// whose id ends in "_<hash>" and loads it if found, so that re-initializing
// from an unchanged PRD always resolves to the same session instead of
// allocating a new one.
func (m *Manager) FindByHash(hash string) (*Session, error) {
	dirs, err := m.List()
	if err != nil {
		return nil, err
	}
	suffix := "_" + hash
	for _, dir := range dirs {
		if strings.HasSuffix(filepath.Base(dir), suffix) {
			return m.Load(dir)
		}
	}
	return nil, &NotFoundError{Path: suffix}
}

// Create starts a new session from a PRD at prdPath, with an empty backlog
// ready for the Architect agent to populate. If a session already exists
// for this PRD's content hash, that session is loaded and returned instead
// of allocating a new sequence number, so that initializing twice on an
// unchanged PRD always yields the same session id.
func (m *Manager) Create(prdPath string) (*Session, error) {
	if err := m.EnsureLayout(); err != nil {
		return nil, err
	}
	prd, err := os.ReadFile(prdPath)
	if err != nil {
		return nil, fmt.Errorf("session: reading PRD: %w", err)
	}
	hash := HashPRD(prd)

	if existing, err := m.FindByHash(hash); err == nil {
		if err := m.setCurrent(existing.Dir); err != nil {
			return nil, err
		}
		return existing, nil
	} else if _, isNotFound := err.(*NotFoundError); !isNotFound {
		return nil, err
	}

	seq, err := m.nextSeq()
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(SessionsDirPath(m.root), DirName(seq, hash))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("session: creating session dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, PRDSnapshotFile), prd, 0644); err != nil {
		return nil, fmt.Errorf("session: snapshotting PRD: %w", err)
	}

	meta := Meta{
		RunID:         uuid.NewString(),
		Seq:           seq,
		PRDHash:       hash,
		SchemaVersion: SchemaVersion,
		CreatedAt:     time.Now(),
	}
	s := &Session{Dir: dir, Meta: meta, log: m.log, backlog: backlog.New(), dirty: make(map[string]bool)}
	if err := s.writeMeta(); err != nil {
		return nil, err
	}
	if err := s.FlushUpdates(); err != nil {
		return nil, err
	}
	if err := m.setCurrent(dir); err != nil {
		return nil, err
	}
	return s, nil
}

// Load reads an existing session directory from disk.
func (m *Manager) Load(dir string) (*Session, error) {
	metaPath := filepath.Join(dir, MetaFile)
	raw, err := os.ReadFile(metaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{Path: dir}
		}
		return nil, fmt.Errorf("session: reading meta: %w", err)
	}
	var meta Meta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, &CorruptError{Path: metaPath, Err: err}
	}

	tasksPath := filepath.Join(dir, TasksFile)
	tasksRaw, err := os.ReadFile(tasksPath)
	if err != nil {
		return nil, fmt.Errorf("session: reading tasks: %w", err)
	}
	var doc document
	if err := json.Unmarshal(tasksRaw, &doc); err != nil {
		return nil, &CorruptError{Path: tasksPath, Err: err}
	}
	if err := checkSchemaVersion(doc.SchemaVersion); err != nil {
		return nil, &CorruptError{Path: tasksPath, Err: err}
	}

	b := &backlog.Backlog{Items: doc.Items, Children: doc.Children}
	if b.Items == nil {
		b.Items = make(map[string]*backlog.Item)
	}
	if b.Children == nil {
		b.Children = make(map[string][]string)
	}

	return &Session{Dir: dir, Meta: meta, log: m.log, backlog: b, dirty: make(map[string]bool)}, nil
}

func checkSchemaVersion(docVersion string) error {
	if docVersion == "" {
		return fmt.Errorf("missing schemaVersion")
	}
	have, err := semver.NewVersion(docVersion)
	if err != nil {
		return fmt.Errorf("parsing document schema version %q: %w", docVersion, err)
	}
	want, err := semver.NewConstraint("^" + SchemaVersion)
	if err != nil {
		return err
	}
	if !want.Check(have) {
		return fmt.Errorf("document schema version %s is incompatible with %s", docVersion, SchemaVersion)
	}
	return nil
}

// Current loads the session the current-session pointer refers to.
func (m *Manager) Current() (*Session, error) {
	raw, err := os.ReadFile(CurrentPointerPath(m.root))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{Path: CurrentPointerPath(m.root)}
		}
		return nil, fmt.Errorf("session: reading current pointer: %w", err)
	}
	return m.Load(strings.TrimSpace(string(raw)))
}

func (m *Manager) setCurrent(dir string) error {
	return atomicWrite(CurrentPointerPath(m.root), []byte(dir))
}

// List returns every session directory under the plan root, oldest first.
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(SessionsDirPath(m.root))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(SessionsDirPath(m.root), e.Name()))
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

// Backlog returns the session's in-memory backlog document.
func (s *Session) Backlog() *backlog.Backlog {
	return s.backlog
}

func (s *Session) writeMeta() error {
	raw, err := json.MarshalIndent(s.Meta, "", "  ")
	if err != nil {
		return fmt.Errorf("session: marshaling meta: %w", err)
	}
	return atomicWrite(filepath.Join(s.Dir, MetaFile), raw)
}

// atomicWrite implements the prior tmp-file-then-rename write protocol
// (internal/taskstore/local.go:writeTask): write to a sibling .tmp file,
// then rename over the destination so readers never observe a partial
// write.
func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("session: writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("session: renaming %s to %s: %w", tmp, path, err)
	}
	return nil
}
