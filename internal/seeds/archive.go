package seeds

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const maxArchiveFileSize = 10 << 20 // per-file decompression cap

// ExtractUpload unpacks an uploaded seed archive and makes it the active
// seed for subsequent runs.
func (s *Store) ExtractUpload(zipPath, destDir string) (string, error) {
	taskDir, err := ExtractArchive(zipPath, destDir)
	if err != nil {
		return "", err
	}
	s.SetActive(taskDir)
	return taskDir, nil
}

// ExtractArchive unpacks a seed task zip into destDir and returns the
// directory containing the seed task (the directory holding task.yaml).
// The archive must contain task.yaml, a Dockerfile, and a tests/ directory,
// either at the archive root or under a single top-level folder.
func ExtractArchive(zipPath, destDir string) (string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", fmt.Errorf("failed to open archive: %w", err)
	}
	defer r.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create extraction directory: %w", err)
	}

	for _, f := range r.File {
		if err := extractFile(f, destDir); err != nil {
			return "", err
		}
	}

	taskDir, err := findTaskDir(destDir)
	if err != nil {
		return "", err
	}
	if err := validateTaskDir(taskDir); err != nil {
		return "", err
	}
	return taskDir, nil
}

func extractFile(f *zip.File, destDir string) error {
	// Reject entries that would escape the extraction directory.
	target := filepath.Join(destDir, filepath.Clean(f.Name))
	if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
		return fmt.Errorf("archive entry escapes extraction directory: %s", f.Name)
	}

	if f.FileInfo().IsDir() {
		return os.MkdirAll(target, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", f.Name, err)
	}

	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open archive entry %s: %w", f.Name, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, io.LimitReader(src, maxArchiveFileSize)); err != nil {
		return fmt.Errorf("failed to extract %s: %w", f.Name, err)
	}
	return nil
}

// findTaskDir locates the directory holding task.yaml: the extraction root
// itself, or a single level down when the archive wraps a top-level folder.
func findTaskDir(destDir string) (string, error) {
	if fileExists(filepath.Join(destDir, "task.yaml")) {
		return destDir, nil
	}
	entries, err := os.ReadDir(destDir)
	if err != nil {
		return "", fmt.Errorf("failed to scan extraction directory: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		sub := filepath.Join(destDir, e.Name())
		if fileExists(filepath.Join(sub, "task.yaml")) {
			return sub, nil
		}
	}
	return "", fmt.Errorf("archive does not contain a task.yaml")
}

func validateTaskDir(dir string) error {
	if !fileExists(filepath.Join(dir, "Dockerfile")) {
		return fmt.Errorf("seed task is missing a Dockerfile")
	}
	info, err := os.Stat(filepath.Join(dir, "tests"))
	if err != nil || !info.IsDir() {
		return fmt.Errorf("seed task is missing a tests/ directory")
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
