package writer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/xdotli/agentic-rl/pkg/models"
)

// Task directory layout. ExpandArtifact and CompressTaskDir are inverses of
// each other over these paths.
const (
	taskYAMLFile      = "task.yaml"
	dockerfileFile    = "Dockerfile"
	dockerComposeFile = "docker-compose.yaml"
	solutionFile      = "solution.sh"
	runTestsFile      = "run-tests.sh"
	testsDirName      = "tests"
	testFileName      = "test_outputs.py"
)

// ExpandArtifact materializes a task artifact as a runnable task directory
// under baseDir, named after the task. Scripts are written executable.
// Artifacts whose names sanitize to the same directory get a _NNN suffix
// rather than overwriting each other.
func ExpandArtifact(baseDir string, artifact *models.TaskArtifact) (string, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create task directory: %w", err)
	}
	taskDir, err := claimTaskDir(baseDir, sanitizeTaskName(artifact.Name))
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Join(taskDir, testsDirName), 0o755); err != nil {
		return "", fmt.Errorf("failed to create task directory: %w", err)
	}

	metadata, err := yaml.Marshal(artifact.Metadata)
	if err != nil {
		return "", fmt.Errorf("failed to marshal task.yaml for %s: %w", artifact.Name, err)
	}

	files := []struct {
		path    string
		content []byte
		mode    os.FileMode
	}{
		{taskYAMLFile, metadata, 0o644},
		{dockerfileFile, []byte(artifact.Dockerfile), 0o644},
		{dockerComposeFile, []byte(artifact.DockerCompose), 0o644},
		{solutionFile, []byte(artifact.SolutionScript), 0o755},
		{runTestsFile, []byte(artifact.RunTestsScript), 0o755},
		{filepath.Join(testsDirName, testFileName), []byte(artifact.TestFile), 0o644},
	}
	for _, f := range files {
		if len(f.content) == 0 {
			continue
		}
		if err := os.WriteFile(filepath.Join(taskDir, f.path), f.content, f.mode); err != nil {
			return "", fmt.Errorf("failed to write %s for %s: %w", f.path, artifact.Name, err)
		}
	}
	return taskDir, nil
}

// CompressTaskDir reads a task directory back into an artifact. Missing
// optional files become empty fields; task.yaml is required.
func CompressTaskDir(taskDir string) (*models.TaskArtifact, error) {
	metadataRaw, err := os.ReadFile(filepath.Join(taskDir, taskYAMLFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read task.yaml: %w", err)
	}
	var metadata models.TaskMetadata
	if err := yaml.Unmarshal(metadataRaw, &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse task.yaml: %w", err)
	}

	artifact := &models.TaskArtifact{
		Name:     filepath.Base(taskDir),
		Metadata: metadata,
	}
	artifact.Dockerfile = readOptional(taskDir, dockerfileFile)
	artifact.DockerCompose = readOptional(taskDir, dockerComposeFile)
	artifact.SolutionScript = readOptional(taskDir, solutionFile)
	artifact.RunTestsScript = readOptional(taskDir, runTestsFile)
	artifact.TestFile = readOptional(taskDir, filepath.Join(testsDirName, testFileName))
	return artifact, nil
}

// claimTaskDir creates the first free directory among name, name_001,
// name_002, ... . Mkdir claims the name atomically, so concurrent expansions
// of identically-named tasks cannot share a directory.
func claimTaskDir(baseDir, name string) (string, error) {
	taskDir := filepath.Join(baseDir, name)
	for n := 1; ; n++ {
		err := os.Mkdir(taskDir, 0o755)
		if err == nil {
			return taskDir, nil
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("failed to create task directory: %w", err)
		}
		taskDir = filepath.Join(baseDir, fmt.Sprintf("%s_%03d", name, n))
	}
}

func readOptional(dir, name string) string {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return ""
	}
	return string(data)
}

// sanitizeTaskName maps a task name to a safe directory name.
func sanitizeTaskName(name string) string {
	name = strings.TrimSpace(name)
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ', r == '.':
			b.WriteRune('-')
		}
	}
	if b.Len() == 0 {
		return "task"
	}
	return b.String()
}
