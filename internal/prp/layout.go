package prp

import (
	"fmt"
	"os"
	"path/filepath"
)

// Directory/file names under a session's directory, per the session
// layout: PRP/<id>.md, PRP/.cache/<id>.json, artifacts/<id>/checkpoints.json.
const (
	PRPDirName       = "PRP"
	CacheDirName     = ".cache"
	ArtifactsDirName = "artifacts"
)

func PRPDirPath(sessionDir string) string {
	return filepath.Join(sessionDir, PRPDirName)
}

func CacheDirPath(sessionDir string) string {
	return filepath.Join(sessionDir, PRPDirName, CacheDirName)
}

func ArtifactsDirPath(sessionDir string) string {
	return filepath.Join(sessionDir, ArtifactsDirName)
}

func blueprintPath(sessionDir, taskID string) string {
	return filepath.Join(PRPDirPath(sessionDir), taskID+".md")
}

// writeBlueprintFile renders bp as the markdown document stored at
// PRP/<id>.md.
func writeBlueprintFile(sessionDir, taskID string, bp *Blueprint) error {
	dir := PRPDirPath(sessionDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("prp: creating PRP directory: %w", err)
	}
	return os.WriteFile(blueprintPath(sessionDir, taskID), []byte(renderBlueprint(taskID, bp)), 0644)
}

func renderBlueprint(taskID string, bp *Blueprint) string {
	s := fmt.Sprintf("# Blueprint: %s\n\n## Objective\n\n%s\n\n## Context\n\n%s\n\n## Implementation Steps\n\n",
		taskID, bp.Objective, bp.Context)
	for _, step := range bp.ImplementationSteps {
		s += fmt.Sprintf("- %s\n", step)
	}
	s += "\n## Validation Gates\n\n"
	for i, gate := range bp.ValidationGates {
		s += fmt.Sprintf("%d. %s\n", i+1, gate)
	}
	s += "\n## Success Criteria\n\n"
	for _, c := range bp.SuccessCriteria {
		s += fmt.Sprintf("- %s\n", c)
	}
	if len(bp.References) > 0 {
		s += "\n## References\n\n"
		for _, ref := range bp.References {
			s += fmt.Sprintf("- %s\n", ref)
		}
	}
	return s
}
