// Package seeds manages seed task bundles: uploaded archives and the
// fallback example seed that generation prompts are grounded on.
package seeds

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Bundle holds the contents of a seed task directory.
type Bundle struct {
	Dir        string
	TaskYAML   string
	Dockerfile string
	Solution   string
	TestFile   string
}

// Store tracks the active seed task directory. Uploads replace the active
// seed; when none was uploaded the configured default is used.
type Store struct {
	mu         sync.RWMutex
	activeDir  string
	defaultDir string
	logger     *slog.Logger
}

// NewStore creates a seed store with an optional default seed directory.
func NewStore(defaultDir string, logger *slog.Logger) *Store {
	return &Store{
		defaultDir: defaultDir,
		logger:     logger.With("component", "seeds"),
	}
}

// SetActive records dir as the active seed task directory.
func (s *Store) SetActive(dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeDir = dir
	s.logger.Info("Active seed task set", "dir", dir)
}

// HasUpload reports whether a seed archive has been uploaded this process.
func (s *Store) HasUpload() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeDir != ""
}

// ActiveDir returns the directory the next run will draw its seed from and
// whether that is the uploaded seed (true) or the default (false).
func (s *Store) ActiveDir() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.activeDir != "" {
		return s.activeDir, true
	}
	return s.defaultDir, false
}

// Load reads the active seed bundle from disk.
func (s *Store) Load() (*Bundle, error) {
	dir, uploaded := s.ActiveDir()
	if dir == "" {
		return nil, fmt.Errorf("no seed task available: nothing uploaded and no default configured")
	}
	if !uploaded {
		s.logger.Debug("Using default seed task", "dir", dir)
	}
	return LoadBundle(dir)
}

// LoadBundle reads a seed task directory. All required files must exist.
func LoadBundle(dir string) (*Bundle, error) {
	taskYAML, err := os.ReadFile(filepath.Join(dir, "task.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to read seed task.yaml: %w", err)
	}
	dockerfile, err := os.ReadFile(filepath.Join(dir, "Dockerfile"))
	if err != nil {
		return nil, fmt.Errorf("failed to read seed Dockerfile: %w", err)
	}
	// Solution script is optional in seed bundles.
	solution, _ := os.ReadFile(filepath.Join(dir, "solution.sh"))

	testFile, err := readTestFile(dir)
	if err != nil {
		return nil, err
	}

	return &Bundle{
		Dir:        dir,
		TaskYAML:   string(taskYAML),
		Dockerfile: string(dockerfile),
		Solution:   string(solution),
		TestFile:   testFile,
	}, nil
}

func readTestFile(dir string) (string, error) {
	testsDir := filepath.Join(dir, "tests")
	if data, err := os.ReadFile(filepath.Join(testsDir, "test_outputs.py")); err == nil {
		return string(data), nil
	}
	entries, err := os.ReadDir(testsDir)
	if err != nil {
		return "", fmt.Errorf("failed to read seed tests directory: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(testsDir, e.Name()))
		if err != nil {
			return "", fmt.Errorf("failed to read seed test file: %w", err)
		}
		return string(data), nil
	}
	return "", fmt.Errorf("seed tests directory contains no files")
}
