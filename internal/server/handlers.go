package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/xdotli/agentic-rl/internal/config"
	"github.com/xdotli/agentic-rl/internal/orchestrator"
	"github.com/xdotli/agentic-rl/pkg/models"
)

const maxUploadBytes = 50 << 20

type scenarioRequest struct {
	Scenario string `json:"scenario" binding:"required"`
}

func (s *Server) handleSubmitScenario(c *gin.Context) {
	var req scenarioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "scenario is required"})
		return
	}
	if err := config.ValidateScenario(req.Scenario); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.setScenario(req.Scenario)
	s.logger.Info("Scenario submitted", "length", len(req.Scenario))
	c.JSON(http.StatusOK, gin.H{"message": "Scenario submitted successfully"})
}

func (s *Server) handleUploadSeedTasks(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file field is required"})
		return
	}
	if file.Size > maxUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "archive exceeds size limit"})
		return
	}
	if filepath.Ext(file.Filename) != ".zip" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "only .zip archives are accepted"})
		return
	}

	uploadDir := s.cfg.Server.UploadDir
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to prepare upload directory"})
		return
	}

	uploadID := uuid.New().String()
	zipPath := filepath.Join(uploadDir, uploadID+".zip")
	if err := c.SaveUploadedFile(file, zipPath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store archive"})
		return
	}
	defer os.Remove(zipPath)

	taskDir, err := s.seeds.ExtractUpload(zipPath, filepath.Join(uploadDir, uploadID))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.logger.Info("Seed task uploaded", "filename", file.Filename, "dir", taskDir)
	c.JSON(http.StatusOK, gin.H{"message": "Seed tasks uploaded successfully"})
}

func (s *Server) handleGenerateStream(c *gin.Context) {
	numTasks, err := queryInt(c, "num_tasks")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	parallelism, err := queryInt(c, "parallelism")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req := models.GenerationRequest{
		Scenario:    s.currentScenario(),
		NumTasks:    numTasks,
		Parallelism: parallelism,
		Model:       c.Query("model"),
	}
	if scenario := c.Query("scenario"); scenario != "" {
		req.Scenario = scenario
	}

	handle, err := s.orch.StartRun(c.Request.Context(), req)
	if err != nil {
		status, msg := mapRunError(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	// The run context is the request context: a client that disconnects
	// cancels its run.
	for ev := range handle.Events() {
		data, err := json.Marshal(ev)
		if err != nil {
			s.logger.Error("Failed to marshal event", "error", err)
			continue
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
			handle.Cancel()
			break
		}
		c.Writer.Flush()
	}
}

func (s *Server) handleStatus(c *gin.Context) {
	snap := s.orch.Store().Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"run_id":             snap.RunID,
		"status":             snap.Status,
		"requested":          snap.Requested,
		"succeeded":          snap.Succeeded,
		"failed":             snap.Failed,
		"log":                snap.Log,
		"artifact_count":     len(snap.Artifacts),
		"scenario_submitted": s.currentScenario() != "",
		"seed_task_uploaded": s.seeds.HasUpload(),
	})
}

type validateRequest struct {
	Rounds int `json:"rounds"`
}

func (s *Server) handleValidate(c *gin.Context) {
	if s.engine == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation requires an enabled rater model"})
		return
	}

	var req validateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}
	rounds := req.Rounds
	if rounds <= 0 {
		rounds = s.cfg.Generation.ValidationRounds
	}
	if rounds > config.MaxValidationRounds {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("rounds must not exceed %d", config.MaxValidationRounds)})
		return
	}

	artifacts := s.orch.Store().Artifacts()
	if len(artifacts) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no generated tasks to validate"})
		return
	}

	results := s.engine.RunValidation(c.Request.Context(), artifacts, rounds)
	passed, failed := models.CountRounds(results)
	c.JSON(http.StatusOK, gin.H{
		"rounds": results,
		"passed": passed,
		"failed": failed,
	})
}

func (s *Server) handleDownloadArtifacts(c *gin.Context) {
	artifacts := s.orch.Store().Artifacts()
	if len(artifacts) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no generated tasks available"})
		return
	}

	c.Header("Content-Type", "application/jsonl")
	c.Header("Content-Disposition", `attachment; filename="artifacts.jsonl"`)
	for i := range artifacts {
		data, err := json.Marshal(&artifacts[i])
		if err != nil {
			s.logger.Error("Failed to marshal artifact", "task_name", artifacts[i].Name, "error", err)
			continue
		}
		c.Writer.Write(data)
		c.Writer.Write([]byte("\n"))
	}
}

func mapRunError(err error) (int, string) {
	var invalid *orchestrator.InvalidRequestError
	switch {
	case errors.As(err, &invalid):
		return http.StatusBadRequest, invalid.Reason
	case errors.Is(err, orchestrator.ErrRunInFlight):
		return http.StatusConflict, err.Error()
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

func queryInt(c *gin.Context, name string) (int, error) {
	v := c.Query(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return n, nil
}
