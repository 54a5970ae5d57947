package server

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"

	"github.com/spigell/joblink/internal/catalog"
	"github.com/spigell/joblink/internal/marketplace"
)

// jobRequest carries a posting. Wage is in minor units (kobo for NGN).
type jobRequest struct {
	EmployerID  string   `json:"employerId" binding:"required"`
	Title       string   `json:"title"`
	Location    string   `json:"location"`
	Wage        int64    `json:"wage"`
	Currency    string   `json:"currency" binding:"omitempty,len=3"`
	Category    string   `json:"category"`
	Skills      []string `json:"skills" binding:"dive,max=64"`
	Description string   `json:"description"`
	Urgent      bool     `json:"urgent"`
}

func (r jobRequest) attributes() marketplace.JobAttributes {
	return marketplace.JobAttributes{
		Title:       r.Title,
		Location:    r.Location,
		Wage:        marketplace.Wage{Amount: r.Wage, Currency: r.Currency},
		Category:    r.Category,
		Skills:      r.Skills,
		Urgent:      r.Urgent,
		Description: r.Description,
	}
}

type ownerRequest struct {
	EmployerID string `json:"employerId" form:"employerId" binding:"required"`
}

type searchRequest struct {
	Text       string `form:"text"`
	Category   string `form:"category"`
	Location   string `form:"location"`
	UrgentOnly bool   `form:"urgentOnly"`
	ActiveOnly bool   `form:"activeOnly"`
	EmployerID string `form:"employerId"`
	MinScore   int    `form:"minScore" binding:"gte=0,lte=100"`
	WorkerID   string `form:"workerId"`
}

func (r searchRequest) query() catalog.Query {
	return catalog.Query{
		Text:       r.Text,
		Category:   r.Category,
		Location:   r.Location,
		UrgentOnly: r.UrgentOnly,
		ActiveOnly: r.ActiveOnly,
		EmployerID: r.EmployerID,
		MinScore:   r.MinScore,
	}
}

func (s *Server) postJob(c *gin.Context) {
	var req jobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	job, err := s.svc.Catalog.PostJob(c.Request.Context(), req.EmployerID, req.attributes())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, job)
}

func (s *Server) searchJobs(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	jobs, err := s.svc.Catalog.Search(c.Request.Context(), req.query())
	if err != nil {
		s.fail(c, err)
		return
	}
	out := slices.Collect(jobs)
	if out == nil {
		out = []*marketplace.Job{}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) rankedJobs(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	if req.WorkerID == "" {
		s.fail(c, marketplace.NewValidationError("invalid request", map[string]string{
			"workerId": "workerId is required",
		}))
		return
	}

	worker, err := s.svc.Profiles.GetProfile(c.Request.Context(), req.WorkerID)
	if err != nil {
		s.fail(c, err)
		return
	}
	ranked, err := s.svc.Catalog.Ranked(c.Request.Context(), worker, req.query())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ranked)
}

func (s *Server) getJob(c *gin.Context) {
	job, err := s.svc.Catalog.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) editJob(c *gin.Context) {
	var req jobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	job, err := s.svc.Catalog.Edit(c.Request.Context(), c.Param("id"), req.EmployerID, req.attributes())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) fillJob(c *gin.Context) {
	var req ownerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	job, err := s.svc.Catalog.MarkFilled(c.Request.Context(), c.Param("id"), req.EmployerID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// archiveJob takes the owner from the query string since DELETE bodies are
// often dropped by clients.
func (s *Server) archiveJob(c *gin.Context) {
	var req ownerRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	job, err := s.svc.Catalog.Archive(c.Request.Context(), c.Param("id"), req.EmployerID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}
