package writer

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/xdotli/agentic-rl/pkg/models"
)

// ArtifactWriter appends task artifacts to a JSONL file as they arrive, so
// a crashed or cancelled run still leaves everything generated so far on
// disk.
type ArtifactWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	logger *slog.Logger
	count  int
}

// NewArtifactWriter opens (or creates) the JSONL artifact file for append.
func NewArtifactWriter(path string, logger *slog.Logger) (*ArtifactWriter, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact file: %w", err)
	}
	return &ArtifactWriter{
		file:   file,
		writer: bufio.NewWriter(file),
		logger: logger,
	}, nil
}

// Write appends one artifact as a single JSON line and flushes immediately.
func (w *ArtifactWriter) Write(artifact *models.TaskArtifact) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := json.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("failed to marshal artifact %s: %w", artifact.Name, err)
	}
	if _, err := w.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := w.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush artifact file: %w", err)
	}

	w.count++
	w.logger.Debug("Artifact written", "task_name", artifact.Name, "count", w.count)
	return nil
}

// Count returns the number of artifacts written so far.
func (w *ArtifactWriter) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Close flushes buffered data and closes the underlying file.
func (w *ArtifactWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Flush(); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to flush artifact file: %w", err)
	}
	return w.file.Close()
}

// ReadArtifacts loads a JSONL artifact file written by ArtifactWriter.
func ReadArtifacts(path string) ([]models.TaskArtifact, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact file: %w", err)
	}
	defer file.Close()

	var artifacts []models.TaskArtifact
	scanner := bufio.NewScanner(file)
	// Artifacts carry whole Dockerfiles and test suites in one line.
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var artifact models.TaskArtifact
		if err := json.Unmarshal(scanner.Bytes(), &artifact); err != nil {
			return nil, fmt.Errorf("invalid artifact on line %d: %w", line, err)
		}
		artifacts = append(artifacts, artifact)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read artifact file: %w", err)
	}
	return artifacts, nil
}

// WriteValidationReport writes a validation round list as indented JSON.
func WriteValidationReport(path string, rounds []models.ValidationRound) error {
	passed, failed := models.CountRounds(rounds)
	report := struct {
		Rounds []models.ValidationRound `json:"rounds"`
		Passed int                      `json:"passed"`
		Failed int                      `json:"failed"`
	}{Rounds: rounds, Passed: passed, Failed: failed}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal validation report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write validation report: %w", err)
	}
	return nil
}
