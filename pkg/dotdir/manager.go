// Package dotdir manages the .narrator/ and ~/.narrator directories that hold
// narrator's config.toml.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// dirName is the name of the narrator directory.
	dirName = ".narrator"
)

type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target returns the target absolute path to a .narrator/ directory.
// Order of precedence is as follows:
//  1. Provided override (created if missing)
//  2. Local ./.narrator/ dir
//  3. Home ~/.narrator/ dir
//  4. If none found, an empty string
func (m *Manager) Target(overrideDir string) (string, error) {
	if overrideDir != "" {
		if err := os.MkdirAll(overrideDir, 0o755); err != nil {
			return "", fmt.Errorf("creating narrator directory %s: %w", overrideDir, err)
		}
		return filepath.Abs(overrideDir)
	}

	if local, ok := m.localDir(); ok {
		return local, nil
	}

	if home, ok := m.homeDir(); ok {
		return home, nil
	}

	return "", nil
}

// Ensure is Target, except that when no directory is found ~/.narrator/ is
// created and returned.
func (m *Manager) Ensure(overrideDir string) (string, error) {
	target, err := m.Target(overrideDir)
	if err != nil || target != "" {
		return target, err
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	dir := filepath.Join(home, dirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating narrator directory %s: %w", dir, err)
	}

	return dir, nil
}

// localDir checks whether a .narrator/ directory exists in the current
// working directory.
func (m *Manager) localDir() (string, bool) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", false
	}

	dir := filepath.Join(cwd, dirName)
	info, err := os.Stat(dir)
	return dir, err == nil && info.IsDir()
}

// homeDir checks whether a .narrator/ directory exists in the user's home.
func (m *Manager) homeDir() (string, bool) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", false
	}

	dir := filepath.Join(home, dirName)
	info, err := os.Stat(dir)
	return dir, err == nil && info.IsDir()
}
