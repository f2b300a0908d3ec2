package api

import (
	"github.com/gin-gonic/gin"
	"github.com/saxenaaman628/vote-pipeline/internal/controller"
)

type Handlers struct {
	Votes       *controller.VoteController
	Polls       *controller.PollController
	IPRateLimit gin.HandlerFunc
	Recaptcha   gin.HandlerFunc
}

// RegisterRoutes mounts /vote behind the IP limiter and captcha check, in
// that order, and the status routes without either.
func RegisterRoutes(r *gin.Engine, h Handlers) {
	var vote []gin.HandlerFunc
	for _, mw := range []gin.HandlerFunc{h.IPRateLimit, h.Recaptcha} {
		if mw != nil {
			vote = append(vote, mw)
		}
	}
	vote = append(vote, h.Votes.VoteHandler)
	r.POST("/vote", vote...)

	r.GET("/status", h.Polls.ListPollsHandler)
	r.GET("/status/:pollId", h.Polls.GetPollStatus)
}
