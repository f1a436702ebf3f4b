package cli

import (
	"os"
	"path/filepath"
)

// moveRestoredTree relocates every entry under restoredDir into
// destination, clearing any pre-existing non-.ddup-bak content there
// first. Grounded on original_source/src/commands/backup/restore.rs's
// destination-move step.
func moveRestoredTree(restoredDir, destination string) error {
	if _, err := os.Stat(destination); err == nil {
		entries, err := os.ReadDir(destination)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.Name() == ".ddup-bak" {
				continue
			}
			if err := os.RemoveAll(filepath.Join(destination, e.Name())); err != nil {
				return err
			}
		}
	}

	if err := os.MkdirAll(destination, 0o755); err != nil {
		return err
	}

	entries, err := os.ReadDir(restoredDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		from := filepath.Join(restoredDir, e.Name())
		to := filepath.Join(destination, e.Name())
		if err := os.Rename(from, to); err != nil {
			return err
		}
	}
	return nil
}
