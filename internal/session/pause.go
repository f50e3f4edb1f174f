package session

import (
	"errors"
	"fmt"
	"os"
)

// IsPaused reports whether a plan root has been paused via SetPaused,
// grounded on internal/state.IsPaused.
func IsPaused(root string) (bool, error) {
	if _, err := os.Stat(StateDirPath(root)); os.IsNotExist(err) {
		return false, fmt.Errorf("session: %s does not exist", StateDirPath(root))
	}
	_, err := os.Stat(PausedFilePath(root))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("session: checking paused state: %w", err)
	}
	return true, nil
}

// SetPaused creates or removes the paused marker file for root.
func SetPaused(root string, paused bool) error {
	if _, err := os.Stat(StateDirPath(root)); os.IsNotExist(err) {
		return fmt.Errorf("session: %s does not exist", StateDirPath(root))
	}
	path := PausedFilePath(root)
	if paused {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("session: creating paused marker: %w", err)
		}
		return f.Close()
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("session: removing paused marker: %w", err)
	}
	return nil
}
