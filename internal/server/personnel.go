package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	personneldomain "github.com/smallbiznis/fieldbooks/internal/personnel/domain"
	"github.com/smallbiznis/fieldbooks/internal/viewcache"
	"github.com/smallbiznis/fieldbooks/pkg/db/pagination"
)

const defaultExpiryWindowDays = 30

func (s *Server) CreatePerson(c *gin.Context) {
	var req personneldomain.CreatePersonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.personnelSvc.CreatePerson(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusCreated, resp, nil)
}

func (s *Server) UpdatePerson(c *gin.Context) {
	var req personneldomain.UpdatePersonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.personnelSvc.UpdatePerson(c.Request.Context(), strings.TrimSpace(c.Param("id")), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp, nil)
}

func (s *Server) ListPeople(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Trade  string `form:"trade"`
		Active string `form:"active"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := cachedView(s, c, viewcache.GroupPersonnel, func(ctx context.Context) (personneldomain.ListPeopleResponse, error) {
		return s.personnelSvc.ListPeople(ctx, personneldomain.ListPeopleRequest{
			Pagination: query.Pagination,
			Trade:      strings.TrimSpace(query.Trade),
			Active:     strings.TrimSpace(query.Active),
		})
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondPage(c, http.StatusOK, resp.People, resp.PageInfo)
}

func (s *Server) GetPerson(c *gin.Context) {
	resp, err := s.personnelSvc.GetPerson(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp, nil)
}

func (s *Server) DeletePerson(c *gin.Context) {
	if err := s.personnelSvc.DeletePerson(c.Request.Context(), strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// -------- Certifications --------

func (s *Server) AddCertification(c *gin.Context) {
	var req personneldomain.CertificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.personnelSvc.AddCertification(c.Request.Context(), strings.TrimSpace(c.Param("id")), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusCreated, resp, nil)
}

func (s *Server) UpdateCertification(c *gin.Context) {
	var req personneldomain.CertificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.personnelSvc.UpdateCertification(c.Request.Context(), strings.TrimSpace(c.Param("id")), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp, nil)
}

func (s *Server) DeleteCertification(c *gin.Context) {
	if err := s.personnelSvc.DeleteCertification(c.Request.Context(), strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) ListCertifications(c *gin.Context) {
	resp, err := s.personnelSvc.ListCertifications(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp, nil)
}

func (s *Server) ListExpiringCertifications(c *gin.Context) {
	days, err := parseOptionalInt(c.Query("days"), defaultExpiryWindowDays)
	if err != nil {
		AbortWithError(c, newValidationError("days", "invalid_days", "invalid days"))
		return
	}

	resp, err := s.personnelSvc.ListExpiring(c.Request.Context(), days)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp, nil)
}
