package orchestrator

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// GutterReason identifies why the orchestrator considers a run stuck.
type GutterReason string

const (
	GutterReasonNone            GutterReason = "none"
	GutterReasonRepeatedFailure GutterReason = "repeated_failure"
	GutterReasonFileChurn       GutterReason = "file_churn"
	GutterReasonOscillation     GutterReason = "oscillation"
)

// GutterConfig configures gutter detection thresholds. Grounded on the
// internal/loop/gutter.go, carried over unchanged: the signal
// (repeated identical gate failures, the same files churning across
// iterations, files oscillating between two states) is exactly what
// the same stuck-loop detection here, just driven by verify.Result
// instead of a claude-specific VerificationOutput.
type GutterConfig struct {
	MaxSameFailure     int  `json:"max_same_failure"`
	MaxChurnIterations int  `json:"max_churn_iterations"`
	ChurnThreshold     int  `json:"churn_threshold"`
	MaxOscillations    int  `json:"max_oscillations"`
	EnableContentHash  bool `json:"enable_content_hash"`
}

// DefaultGutterConfig returns sensible defaults.
func DefaultGutterConfig() GutterConfig {
	return GutterConfig{
		MaxSameFailure:     3,
		MaxChurnIterations: 5,
		ChurnThreshold:     3,
		MaxOscillations:    2,
		EnableContentHash:  true,
	}
}

// GutterStatus is the outcome of a gutter check.
type GutterStatus struct {
	InGutter    bool
	Reason      GutterReason
	Description string
}

// IterationOutcome is the subset of a completed subtask attempt the gutter
// detector needs to watch for stuck patterns.
type IterationOutcome struct {
	SubtaskID    string
	Failed       bool
	FilesChanged []string
	GateResults  []*GateResult
}

// GutterDetector tracks recent subtask iterations and flags stuck-loop
// conditions before the orchestrator burns more budget on them.
type GutterDetector struct {
	config            GutterConfig
	failureSignatures map[string]int
	fileChanges       [][]string
	contentHashes     map[string][]string
	oscillationCounts map[string]int
}

// NewGutterDetector returns a detector using config.
func NewGutterDetector(config GutterConfig) *GutterDetector {
	return &GutterDetector{
		config:            config,
		failureSignatures: make(map[string]int),
		contentHashes:     make(map[string][]string),
		oscillationCounts: make(map[string]int),
	}
}

// ComputeFailureSignature hashes the failed gate outputs of an iteration so
// repeated identical failures can be recognized across retries.
func ComputeFailureSignature(results []*GateResult) string {
	var failures []string
	for _, r := range results {
		if r != nil && !r.Passed {
			failures = append(failures, fmt.Sprintf("%s:%s:%s", r.Gate, r.Command, r.Output))
		}
	}
	if len(failures) == 0 {
		return ""
	}
	sort.Strings(failures)
	hash := sha256.Sum256([]byte(strings.Join(failures, "\n")))
	return hex.EncodeToString(hash[:])
}

// RecordIteration folds one completed subtask attempt into the detector's
// history.
func (d *GutterDetector) RecordIteration(outcome IterationOutcome) {
	if len(outcome.FilesChanged) > 0 {
		d.fileChanges = append(d.fileChanges, outcome.FilesChanged)
		if d.config.MaxChurnIterations > 0 && len(d.fileChanges) > d.config.MaxChurnIterations {
			d.fileChanges = d.fileChanges[len(d.fileChanges)-d.config.MaxChurnIterations:]
		}
	}

	if d.config.EnableContentHash && len(outcome.FilesChanged) > 0 {
		for _, file := range outcome.FilesChanged {
			prev := d.contentHashes[file]
			if len(prev) > 0 {
				d.oscillationCounts[file]++
			}
			marker := fmt.Sprintf("%d", len(d.fileChanges))
			d.contentHashes[file] = append(prev, marker)
			if d.config.MaxChurnIterations > 0 && len(d.contentHashes[file]) > d.config.MaxChurnIterations {
				d.contentHashes[file] = d.contentHashes[file][len(d.contentHashes[file])-d.config.MaxChurnIterations:]
			}
		}
	}

	if outcome.Failed {
		if sig := ComputeFailureSignature(outcome.GateResults); sig != "" {
			d.failureSignatures[sig]++
		}
	}
}

// Check inspects recorded history for a gutter condition.
func (d *GutterDetector) Check() GutterStatus {
	if status := d.checkRepeatedFailure(); status.InGutter {
		return status
	}
	if status := d.checkOscillation(); status.InGutter {
		return status
	}
	return d.checkFileChurn()
}

func (d *GutterDetector) checkRepeatedFailure() GutterStatus {
	if d.config.MaxSameFailure <= 0 {
		return GutterStatus{}
	}
	for sig, count := range d.failureSignatures {
		if count >= d.config.MaxSameFailure {
			return GutterStatus{
				InGutter:    true,
				Reason:      GutterReasonRepeatedFailure,
				Description: fmt.Sprintf("same gate failure repeated %d times (threshold %d), signature %s", count, d.config.MaxSameFailure, sig[:8]),
			}
		}
	}
	return GutterStatus{}
}

func (d *GutterDetector) checkOscillation() GutterStatus {
	if d.config.MaxOscillations <= 0 || !d.config.EnableContentHash {
		return GutterStatus{}
	}
	var oscillating []string
	for file, count := range d.oscillationCounts {
		if count >= d.config.MaxOscillations {
			oscillating = append(oscillating, file)
		}
	}
	if len(oscillating) == 0 {
		return GutterStatus{}
	}
	sort.Strings(oscillating)
	return GutterStatus{
		InGutter:    true,
		Reason:      GutterReasonOscillation,
		Description: fmt.Sprintf("files oscillating (%d+ repeat touches): %s", d.config.MaxOscillations, strings.Join(oscillating, ", ")),
	}
}

func (d *GutterDetector) checkFileChurn() GutterStatus {
	if d.config.MaxChurnIterations <= 0 || d.config.ChurnThreshold <= 0 {
		return GutterStatus{}
	}
	counts := make(map[string]int)
	for _, files := range d.fileChanges {
		for _, f := range files {
			counts[f]++
		}
	}
	var churning []string
	for f, c := range counts {
		if c >= d.config.ChurnThreshold {
			churning = append(churning, f)
		}
	}
	if len(churning) == 0 {
		return GutterStatus{}
	}
	sort.Strings(churning)
	return GutterStatus{
		InGutter:    true,
		Reason:      GutterReasonFileChurn,
		Description: fmt.Sprintf("files touched %d+ times in last %d iterations: %s", d.config.ChurnThreshold, len(d.fileChanges), strings.Join(churning, ", ")),
	}
}

// Reset clears all tracked history (called when a subtask finally
// succeeds, so earlier failures on other subtasks don't falsely trip the
// detector for unrelated work).
func (d *GutterDetector) Reset() {
	d.failureSignatures = make(map[string]int)
	d.fileChanges = nil
	d.contentHashes = make(map[string][]string)
	d.oscillationCounts = make(map[string]int)
}
