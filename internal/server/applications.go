package server

import (
	"fmt"
	"iter"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/spigell/joblink/internal/logger"
	"github.com/spigell/joblink/internal/marketplace"
)

const (
	actionReview = "review"
	actionAccept = "accept"
	actionReject = "reject"
)

type applyRequest struct {
	JobID    string `json:"jobId" binding:"required"`
	WorkerID string `json:"workerId" binding:"required"`
}

type decisionRequest struct {
	EmployerID string `json:"employerId" binding:"required"`
	Action     string `json:"action" binding:"required,oneof=review accept reject"`
}

type listApplicationsRequest struct {
	WorkerID string `form:"workerId"`
	JobID    string `form:"jobId"`
}

func (s *Server) apply(c *gin.Context) {
	var req applyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	ctx := c.Request.Context()
	applied, err := s.svc.Workflow.HasApplied(ctx, req.JobID, req.WorkerID)
	if err != nil {
		s.fail(c, err)
		return
	}
	if applied {
		s.fail(c, marketplace.NewConflictError(fmt.Sprintf("worker %s already applied for job %s", req.WorkerID, req.JobID)))
		return
	}

	if !s.svc.Limiter.Allow(ctx, "apply:"+req.JobID+":"+req.WorkerID, s.opts.ApplyLimit, s.opts.ApplyWindow) {
		s.logger.Warn("apply rate limited", logger.ApplicationFields("", req.JobID, req.WorkerID, "")...)
		s.rateLimited(c)
		return
	}

	app, err := s.svc.Workflow.Apply(ctx, req.JobID, req.WorkerID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, app)
}

func (s *Server) updateApplication(c *gin.Context) {
	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	ctx := c.Request.Context()
	id := c.Param("id")

	var (
		app *marketplace.Application
		err error
	)
	switch req.Action {
	case actionReview:
		app, err = s.svc.Workflow.MarkReviewed(ctx, id, req.EmployerID)
	case actionAccept:
		app, err = s.svc.Workflow.Decide(ctx, id, req.EmployerID, marketplace.OutcomeAccept)
	case actionReject:
		app, err = s.svc.Workflow.Decide(ctx, id, req.EmployerID, marketplace.OutcomeReject)
	}
	if err != nil {
		s.fail(c, err)
		return
	}

	s.logger.Debug("application updated", zap.String("action", req.Action), zap.String(logger.FieldApplicationID, id))
	c.JSON(http.StatusOK, app)
}

func (s *Server) listApplications(c *gin.Context) {
	var req listApplicationsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	ctx := c.Request.Context()
	var (
		apps iter.Seq[*marketplace.Application]
		err  error
	)
	switch {
	case req.WorkerID != "" && req.JobID == "":
		apps, err = s.svc.Workflow.ListForWorker(ctx, req.WorkerID)
	case req.JobID != "" && req.WorkerID == "":
		apps, err = s.svc.Workflow.ListForJob(ctx, req.JobID)
	default:
		err = marketplace.NewValidationError("invalid request", map[string]string{
			"query": "exactly one of workerId or jobId is required",
		})
	}
	if err != nil {
		s.fail(c, err)
		return
	}

	out := slices.Collect(apps)
	if out == nil {
		out = []*marketplace.Application{}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) jobApplicationCount(c *gin.Context) {
	counts, err := s.svc.Workflow.CountForJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, counts)
}

func (s *Server) notifications(c *gin.Context) {
	userID := c.Query("userId")
	if userID == "" {
		s.fail(c, marketplace.NewValidationError("invalid request", map[string]string{
			"userId": "userId is required",
		}))
		return
	}
	c.JSON(http.StatusOK, s.svc.Inbox.List(userID))
}
