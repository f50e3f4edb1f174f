// Package prp implements the PRP Runtime: the per-subtask lifecycle of
// blueprint generation, execution, progressive validation, and commit, with
// cache and checkpoint support. Grounded on internal/loop
// package (controller dispatch, record-keeping) and internal/memory
// (progress narration), generalized from a flat single-stage
// loop to the four-stage blueprint/execute/validate/commit pipeline.
package prp

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/autoforge/autoforge/internal/backlog"
)

// DefaultCacheTTL is how long a cached blueprint remains valid before
// regeneration is forced, independent of whether its cache key still
// matches.
const DefaultCacheTTL = 24 * time.Hour

// CacheVersion is written into every cache entry; a mismatch on load causes
// the entry to be treated as a miss rather than rejected outright, so an
// older cache does not block a run.
const CacheVersion = "1"

// Blueprint is the structured document the researcher agent produces and
// the coder agent is prompted against.
type Blueprint struct {
	Objective            string   `json:"objective"`
	Context              string   `json:"context"`
	ImplementationSteps  []string `json:"implementationSteps"`
	ValidationGates      []string `json:"validationGates"`
	SuccessCriteria      []string `json:"successCriteria"`
	References           []string `json:"references"`
}

// Validate checks that a generated blueprint satisfies the schema the
// researcher agent's response must conform to.
func (b *Blueprint) Validate() error {
	if b.Objective == "" {
		return fmt.Errorf("prp: blueprint missing objective")
	}
	if b.Context == "" {
		return fmt.Errorf("prp: blueprint missing context")
	}
	if len(b.ImplementationSteps) == 0 {
		return fmt.Errorf("prp: blueprint missing implementationSteps")
	}
	if len(b.ValidationGates) < 1 || len(b.ValidationGates) > 4 {
		return fmt.Errorf("prp: blueprint validationGates must have 1-4 entries, got %d", len(b.ValidationGates))
	}
	if len(b.SuccessCriteria) == 0 {
		return fmt.Errorf("prp: blueprint missing successCriteria")
	}
	return nil
}

// CacheEntry is the on-disk shape of PRP/.cache/<subtask-id>.json.
type CacheEntry struct {
	TaskID    string     `json:"taskId"`
	TaskHash   string     `json:"taskHash"`
	CreatedAt  time.Time  `json:"createdAt"`
	AccessedAt time.Time  `json:"accessedAt"`
	Version    string     `json:"version"`
	PRP        *Blueprint `json:"prp"`

	// Optional compression bookkeeping; readers default these when absent.
	CompressionLevel int     `json:"compressionLevel,omitempty"`
	InputTokens      int     `json:"inputTokens,omitempty"`
	OutputTokens     int     `json:"outputTokens,omitempty"`
	CompressionRatio float64 `json:"compressionRatio,omitempty"`
	OriginalSize     int     `json:"originalSize,omitempty"`
	CompressedSize   int     `json:"compressedSize,omitempty"`
}

// Cache is the blueprint cache rooted at a session's PRP/.cache directory.
// Keys are addressed per subtask id, so concurrent writes from different
// subtasks never collide (parallel-mode safe by construction).
type Cache struct {
	dir string
	ttl time.Duration
}

// NewCache returns a Cache rooted at dir (a session's PRP/.cache directory).
func NewCache(dir string) *Cache {
	return &Cache{dir: dir, ttl: DefaultCacheTTL}
}

// SetTTL overrides the cache freshness window.
func (c *Cache) SetTTL(ttl time.Duration) {
	c.ttl = ttl
}

func (c *Cache) path(taskID string) string {
	return filepath.Join(c.dir, taskID+".json")
}

// Get looks up a cache entry for taskID. It returns ok=false if no entry
// exists, the entry cannot be parsed, its version differs from CacheVersion,
// its recorded hash no longer matches currentHash, or its age exceeds the
// configured TTL. On a hit, the
// entry's AccessedAt is touched and persisted.
func (c *Cache) Get(taskID, currentHash string) (*CacheEntry, bool, error) {
	raw, err := os.ReadFile(c.path(taskID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("prp: reading cache entry: %w", err)
	}
	var entry CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, false, nil
	}
	if entry.Version != CacheVersion {
		return nil, false, nil
	}
	if entry.TaskHash != currentHash {
		return nil, false, nil
	}
	if c.ttl > 0 && time.Since(entry.CreatedAt) > c.ttl {
		return nil, false, nil
	}
	entry.AccessedAt = time.Now()
	if err := c.write(taskID, &entry); err != nil {
		return nil, false, err
	}
	return &entry, true, nil
}

// Put writes a freshly generated blueprint to the cache.
func (c *Cache) Put(taskID, hash string, bp *Blueprint) error {
	now := time.Now()
	entry := &CacheEntry{
		TaskID:     taskID,
		TaskHash:   hash,
		CreatedAt:  now,
		AccessedAt: now,
		Version:    CacheVersion,
		PRP:        bp,
	}
	return c.write(taskID, entry)
}

func (c *Cache) write(taskID string, entry *CacheEntry) error {
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("prp: creating cache directory: %w", err)
	}
	raw, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("prp: marshaling cache entry: %w", err)
	}
	tmp := c.path(taskID) + ".tmp"
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		return fmt.Errorf("prp: writing cache entry: %w", err)
	}
	if err := os.Rename(tmp, c.path(taskID)); err != nil {
		return fmt.Errorf("prp: renaming cache entry: %w", err)
	}
	return nil
}

// ComputeCacheKey hashes the subtask's identity-bearing fields plus its
// ancestor chain, so a change to any of them invalidates a stale blueprint.
// ancestorIDs must already be ordered from nearest ancestor to the phase.
func ComputeCacheKey(item *backlog.Item, ancestorIDs []string) string {
	deps := append([]string(nil), item.DependsOn...)
	sort.Strings(deps)

	h := sha256.New()
	fmt.Fprintf(h, "id=%s\n", item.ID)
	fmt.Fprintf(h, "title=%s\n", item.Title)
	fmt.Fprintf(h, "storyPoints=%d\n", item.StoryPoints)
	fmt.Fprintf(h, "deps=%s\n", strings.Join(deps, ","))
	if item.ContextScope != nil {
		fmt.Fprintf(h, "contextScope=%s|%s|%s|%s\n",
			item.ContextScope.ResearchNote,
			strings.Join(item.ContextScope.Input, ";"),
			strings.Join(item.ContextScope.Logic, ";"),
			strings.Join(item.ContextScope.Output, ";"))
	}
	fmt.Fprintf(h, "ancestors=%s\n", strings.Join(ancestorIDs, ","))
	return hex.EncodeToString(h.Sum(nil))
}
