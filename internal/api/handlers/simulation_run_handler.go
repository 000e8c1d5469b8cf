package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	responsemodels "github.com/theblitlabs/fedsim/internal/api/models"
	"github.com/theblitlabs/fedsim/internal/core/ports"
	"github.com/theblitlabs/fedsim/internal/core/services"
	"github.com/theblitlabs/fedsim/pkg/logger"
)

const defaultPageSize = 50

type SimulationRunHandler struct {
	service ports.RunService
}

func NewSimulationRunHandler(service ports.RunService) *SimulationRunHandler {
	return &SimulationRunHandler{
		service: service,
	}
}

func (h *SimulationRunHandler) ListRuns(c *gin.Context) {
	log := logger.WithComponent("run_handler")

	limit, err := queryInt(c, "limit", defaultPageSize)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid offset"})
		return
	}

	runs, err := h.service.ListRuns(c.Request.Context(), limit, offset)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list simulation runs")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list runs"})
		return
	}

	responses := make([]responsemodels.RunResponse, 0, len(runs))
	for _, run := range runs {
		responses = append(responses, responsemodels.NewRunResponse(run))
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":  responses,
		"count": len(responses),
	})
}

func (h *SimulationRunHandler) GetRun(c *gin.Context) {
	runID, ok := parseRunID(c)
	if !ok {
		return
	}

	run, err := h.service.GetRun(c.Request.Context(), runID)
	if err != nil {
		respondRunError(c, runID, err)
		return
	}

	c.JSON(http.StatusOK, responsemodels.NewRunResponse(run))
}

func (h *SimulationRunHandler) GetRounds(c *gin.Context) {
	runID, ok := parseRunID(c)
	if !ok {
		return
	}

	rounds, err := h.service.GetRounds(c.Request.Context(), runID)
	if err != nil {
		respondRunError(c, runID, err)
		return
	}

	c.JSON(http.StatusOK, responsemodels.RoundsResponse{
		RunID:  runID.String(),
		Rounds: rounds,
		Count:  len(rounds),
	})
}

func (h *SimulationRunHandler) GetModel(c *gin.Context) {
	runID, ok := parseRunID(c)
	if !ok {
		return
	}

	params, err := h.service.GetModel(c.Request.Context(), runID)
	if err != nil {
		respondRunError(c, runID, err)
		return
	}

	c.JSON(http.StatusOK, responsemodels.ModelResponse{
		RunID:      runID.String(),
		ParamCount: len(params),
		Params:     params,
	})
}

func parseRunID(c *gin.Context) (uuid.UUID, bool) {
	runIDStr := c.Param("id")
	runID, err := uuid.Parse(runIDStr)
	if err != nil {
		log := logger.WithComponent("run_handler")
		log.Error().Err(err).Str("run_id", runIDStr).Msg("Invalid run ID")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid run ID"})
		return uuid.Nil, false
	}
	return runID, true
}

func respondRunError(c *gin.Context, runID uuid.UUID, err error) {
	if errors.Is(err, services.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
		return
	}
	log := logger.WithComponent("run_handler")
	log.Error().Err(err).Str("run_id", runID.String()).Msg("Failed to load simulation run")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load run"})
}

func queryInt(c *gin.Context, key string, fallback int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.New("invalid integer")
	}
	return v, nil
}
