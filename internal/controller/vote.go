package controller

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/logger"
	"github.com/saxenaaman628/vote-pipeline/internal/errs"
	"github.com/saxenaaman628/vote-pipeline/internal/logging"
	"github.com/saxenaaman628/vote-pipeline/internal/middleware"
	"github.com/saxenaaman628/vote-pipeline/internal/models"
	"github.com/saxenaaman628/vote-pipeline/internal/votetoken"
	"github.com/saxenaaman628/vote-pipeline/internal/voting"
)

type VoteRegistrar interface {
	RegisterVote(ctx context.Context, req models.VoteRequest) (voting.Receipt, error)
}

type VoteController struct {
	votes  VoteRegistrar
	logger *logger.Logger
}

func NewVoteController(votes VoteRegistrar, l *logger.Logger) *VoteController {
	return &VoteController{votes: votes, logger: logging.Resolve(l)}
}

// VoteHandler handles POST /vote.
func (vc *VoteController) VoteHandler(c *gin.Context) {
	var req models.VoteRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": true, "message": "Invalid vote payload"})
		return
	}
	req.ClientIP = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")
	if score, ok := c.Get(middleware.RecaptchaScoreKey); ok {
		if f, ok := score.(float64); ok {
			req.RecaptchaScore = &f
		}
	}

	receipt, err := vc.votes.RegisterVote(c.Request.Context(), req)
	if err != nil {
		writeError(c, vc.logger, err, "Participant not found in this poll")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Vote registered successfully",
		"count":   receipt.VoterCount,
	})
}

// writeError is the single place ingestion and status errors become HTTP
// responses. notFound is the message used for a 404.
func writeError(c *gin.Context, l *logger.Logger, err error, notFound string) {
	var rl *voting.RateLimitError
	if errors.As(err, &rl) {
		middleware.SetRateLimitHeaders(c, rl.Result)
		c.JSON(http.StatusTooManyRequests, middleware.RateLimitBody("Vote limit per minute exceeded for this poll", rl.Result))
		return
	}

	status, message := classify(err)
	if status == http.StatusNotFound {
		message = notFound
	}
	if status >= http.StatusInternalServerError {
		l.Errorf("event=request_failed method=%s path=%s status=%d error=%v",
			c.Request.Method, c.FullPath(), status, err)
	}
	c.JSON(status, gin.H{"error": true, "message": message})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, errs.ErrValidation):
		return http.StatusBadRequest, "participantId and pollId are required"
	case errors.Is(err, votetoken.ErrTokenExpired):
		return http.StatusBadRequest, "Vote token expired"
	case errors.Is(err, votetoken.ErrTokenMismatch), errors.Is(err, votetoken.ErrInvalidSignature):
		return http.StatusBadRequest, "Invalid or tampered vote token"
	case errors.Is(err, errs.ErrInvalidToken):
		return http.StatusBadRequest, "Invalid vote token"
	case errors.Is(err, errs.ErrInactivePoll):
		return http.StatusBadRequest, "This poll is not active"
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, errs.ErrRateLimited):
		return http.StatusTooManyRequests, "Too many requests"
	case errors.Is(err, errs.ErrUnavailable):
		return http.StatusServiceUnavailable, "Service temporarily unavailable"
	default:
		return http.StatusInternalServerError, "Error processing request"
	}
}
