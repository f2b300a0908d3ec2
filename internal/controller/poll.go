package controller

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"
	"github.com/saxenaaman628/vote-pipeline/internal/logging"
	"github.com/saxenaaman628/vote-pipeline/internal/status"
)

type StatusReader interface {
	GetStatus(ctx context.Context, pollID string) (status.Status, error)
	ListPolls(ctx context.Context, page, limit int, activeOnly bool) (status.PollList, error)
}

type PollController struct {
	status StatusReader
	logger *logger.Logger
}

func NewPollController(s StatusReader, l *logger.Logger) *PollController {
	return &PollController{status: s, logger: logging.Resolve(l)}
}

// GetPollStatus handles GET /status/:pollId.
func (pc *PollController) GetPollStatus(c *gin.Context) {
	pollID := strings.TrimSpace(c.Param("pollId"))
	if pollID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": true, "message": "Poll id is required"})
		return
	}

	st, err := pc.status.GetStatus(c.Request.Context(), pollID)
	if err != nil {
		writeError(c, pc.logger, err, "Poll not found")
		return
	}
	c.JSON(http.StatusOK, st)
}

// ListPollsHandler handles GET /status?page=&limit=&filterActive=.
func (pc *PollController) ListPollsHandler(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	activeOnly := c.Query("filterActive") == "true"

	list, err := pc.status.ListPolls(c.Request.Context(), page, limit, activeOnly)
	if err != nil {
		writeError(c, pc.logger, err, "Poll not found")
		return
	}
	c.JSON(http.StatusOK, list)
}
