// Package writer persists generation sessions: per-run output directories,
// task artifacts, and the exportable task directory layout.
package writer

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// SessionManager manages the output directory of a single generation
// session.
type SessionManager struct {
	sessionDir string
	logger     *slog.Logger
}

// NewSessionManager creates a timestamped session directory under outputDir.
func NewSessionManager(outputDir string, logger *slog.Logger) (*SessionManager, error) {
	if outputDir == "" {
		outputDir = "output"
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02T15-04-05")
	sessionDir := filepath.Join(outputDir, "session_"+timestamp)
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	logger.Info("Created new session directory", "path", sessionDir)

	return &SessionManager{
		sessionDir: sessionDir,
		logger:     logger,
	}, nil
}

// SessionDir returns the session directory path.
func (sm *SessionManager) SessionDir() string {
	return sm.sessionDir
}

// ArtifactsPath returns the path of the JSONL artifact export.
func (sm *SessionManager) ArtifactsPath() string {
	return filepath.Join(sm.sessionDir, "artifacts.jsonl")
}

// TasksDir returns the directory holding per-task exports.
func (sm *SessionManager) TasksDir() string {
	return filepath.Join(sm.sessionDir, "tasks")
}

// ValidationPath returns the path of the validation report.
func (sm *SessionManager) ValidationPath() string {
	return filepath.Join(sm.sessionDir, "validation.json")
}

// LogPath returns the path of the session log file.
func (sm *SessionManager) LogPath() string {
	return filepath.Join(sm.sessionDir, "session.log")
}

// ConfigBackupPath returns the path of the config backup.
func (sm *SessionManager) ConfigBackupPath() string {
	return filepath.Join(sm.sessionDir, "config.toml.bak")
}

// BackupConfig copies the config file into the session directory so a
// session's output can always be traced back to the settings that produced
// it.
func (sm *SessionManager) BackupConfig(configPath string) error {
	source, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	backupPath := sm.ConfigBackupPath()
	if err := os.WriteFile(backupPath, source, 0o644); err != nil {
		return fmt.Errorf("failed to write config backup: %w", err)
	}
	sm.logger.Info("Backed up config file", "path", backupPath)
	return nil
}
