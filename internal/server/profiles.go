package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/spigell/joblink/internal/marketplace"
	"github.com/spigell/joblink/internal/profiles"
)

type createProfileRequest struct {
	Role        string   `json:"role" binding:"required,oneof=worker employer"`
	DisplayName string   `json:"displayName"`
	Location    string   `json:"location"`
	Email       string   `json:"email" binding:"omitempty,email"`
	Phone       string   `json:"phone"`
	Rating      float64  `json:"rating" binding:"gte=0,lte=5"`
	Skills      []string `json:"skills" binding:"dive,max=64"`
	Experience  string   `json:"experience"`
	CompanyName string   `json:"companyName"`
	Industry    string   `json:"industry"`
}

type skillsRequest struct {
	Skills []string `json:"skills" binding:"dive,max=64"`
}

type ratingRequest struct {
	Rating *float64 `json:"rating" binding:"required"`
}

func (s *Server) createProfile(c *gin.Context) {
	var req createProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	role, err := marketplace.ParseRole(req.Role)
	if err != nil {
		s.badRequest(c, err)
		return
	}

	p, err := s.svc.Profiles.CreateProfile(c.Request.Context(), role, profiles.Attributes{
		DisplayName: req.DisplayName,
		Location:    req.Location,
		Email:       req.Email,
		Phone:       req.Phone,
		Rating:      req.Rating,
		Skills:      req.Skills,
		Experience:  req.Experience,
		CompanyName: req.CompanyName,
		Industry:    req.Industry,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (s *Server) getProfile(c *gin.Context) {
	p, err := s.svc.Profiles.GetProfile(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) updateSkills(c *gin.Context) {
	var req skillsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	p, err := s.svc.Profiles.UpdateSkills(c.Request.Context(), c.Param("id"), req.Skills)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) updateRating(c *gin.Context) {
	var req ratingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	p, err := s.svc.Profiles.UpdateRating(c.Request.Context(), c.Param("id"), *req.Rating)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) deactivateProfile(c *gin.Context) {
	p, err := s.svc.Profiles.Deactivate(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

type summaryRequest struct {
	Since time.Time `form:"since" time_format:"2006-01-02T15:04:05Z07:00"`
}

func (s *Server) employerSummary(c *gin.Context) {
	var req summaryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	summary, err := s.svc.Workflow.Summary(c.Request.Context(), c.Param("id"), req.Since)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
