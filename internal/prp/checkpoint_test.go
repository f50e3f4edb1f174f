package prp

import (
	"testing"
	"time"
)

func TestCheckpointAppendAndLoad(t *testing.T) {
	dir := t.TempDir()
	m := NewCheckpointManager(dir)

	if _, err := m.Append("P1.M1.T1.S1", CheckpointState{Stage: StagePreExecution, Timestamp: time.Now()}, nil); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := m.Append("P1.M1.T1.S1", CheckpointState{Stage: StageCoderResponse, Timestamp: time.Now()}, nil); err != nil {
		t.Fatalf("Append: %v", err)
	}

	cps, err := m.Load("P1.M1.T1.S1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cps) != 2 {
		t.Fatalf("len(cps) = %d, want 2", len(cps))
	}
	if cps[0].State.Stage != StagePreExecution {
		t.Errorf("cps[0].Stage = %s, want %s", cps[0].State.Stage, StagePreExecution)
	}
}

func TestCheckpointRetentionPrunesOldest(t *testing.T) {
	dir := t.TempDir()
	m := NewCheckpointManager(dir)
	m.SetRetention(2)

	stages := []Stage{StagePreExecution, StageCoderResponse, StageValidationGate1, StageValidationGate2}
	for _, s := range stages {
		if _, err := m.Append("S1", CheckpointState{Stage: s, Timestamp: time.Now()}, nil); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	cps, err := m.Load("S1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cps) != 2 {
		t.Fatalf("len(cps) = %d, want 2 (pruned to retention)", len(cps))
	}
	if cps[0].State.Stage != StageValidationGate1 || cps[1].State.Stage != StageValidationGate2 {
		t.Errorf("retained checkpoints = %v, want [gate1, gate2] (most recent)", cps)
	}
}

func TestCheckpointLoadMissingReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	m := NewCheckpointManager(dir)
	cps, err := m.Load("nonexistent")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cps) != 0 {
		t.Errorf("len(cps) = %d, want 0", len(cps))
	}
}

func TestCheckpointRecordsError(t *testing.T) {
	dir := t.TempDir()
	m := NewCheckpointManager(dir)
	cp, err := m.Append("S1", CheckpointState{Stage: StageValidationGate1, Timestamp: time.Now()},
		&CheckpointError{Message: "boom", Code: "gate_failure"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if cp.Error == nil || cp.Error.Message != "boom" {
		t.Errorf("Error = %+v, want message 'boom'", cp.Error)
	}
}
