// Package files manages the locally staged item images. Every pipeline run
// stages its downloads under a private run directory, so cleanup after the
// run cannot touch files owned by anyone else.
package files

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OrphanMaxAge is how old a staged image may get before the startup sweep
// deletes it. Anything older was left behind by a crashed run.
const OrphanMaxAge = 24 * time.Hour

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// NewRunDir creates a fresh, uniquely named staging directory under base and
// returns its path. The directory is owned exclusively by the calling run.
func NewRunDir(base string) (string, error) {
	dir := filepath.Join(base, uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// RemoveRunDir deletes a run's staging directory and everything in it.
// Errors are swallowed; a leftover directory is picked up by SweepOrphans.
func RemoveRunDir(dir string) {
	if dir == "" {
		return
	}
	_ = os.RemoveAll(dir)
}

// CleanupImages removes the given image files, ignoring individual failures,
// and returns how many were deleted.
func CleanupImages(paths []string) int {
	deleted := 0
	for _, p := range paths {
		if err := os.Remove(p); err == nil {
			deleted++
		}
	}
	return deleted
}

// SweepOrphans removes staged images (and empty run directories) under base
// older than maxAge. Runs once per process start.
func SweepOrphans(base string, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(base)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	deleted := 0
	for _, entry := range entries {
		path := filepath.Join(base, entry.Name())
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if entry.IsDir() {
			deleted += sweepDir(path, cutoff)
			continue
		}
		if isStaleImage(info.Name(), info.ModTime(), cutoff) {
			if err := os.Remove(path); err == nil {
				deleted++
			}
		}
	}
	return deleted, nil
}

func sweepDir(dir string, cutoff time.Time) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	deleted := 0
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil || entry.IsDir() {
			continue
		}
		if isStaleImage(info.Name(), info.ModTime(), cutoff) {
			if err := os.Remove(filepath.Join(dir, entry.Name())); err == nil {
				deleted++
			}
		}
	}
	// Drop the run directory itself once it is empty.
	if rest, err := os.ReadDir(dir); err == nil && len(rest) == 0 {
		_ = os.Remove(dir)
	}
	return deleted
}

func isStaleImage(name string, modTime, cutoff time.Time) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))] && modTime.Before(cutoff)
}
