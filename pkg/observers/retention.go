package observers

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// PurgeArtifacts removes session artifacts (*.jsonl, *.usage.json) in dir
// last modified before now-maxAge and returns how many were deleted. Other
// files and subdirectories are left alone.
func PurgeArtifacts(dir string, maxAge time.Duration, now time.Time) (int, error) {
	if strings.TrimSpace(dir) == "" || maxAge <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	cutoff := now.Add(-maxAge)
	var removed int
	var errs error
	for _, entry := range entries {
		if entry.IsDir() || !isArtifact(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			errs = errors.Join(errs, err)
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			errs = errors.Join(errs, err)
			continue
		}
		removed++
	}
	return removed, errs
}

func isArtifact(name string) bool {
	return strings.HasSuffix(name, ".jsonl") || strings.HasSuffix(name, ".usage.json")
}
