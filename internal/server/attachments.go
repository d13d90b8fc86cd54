package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	attachmentdomain "github.com/smallbiznis/fieldbooks/internal/attachment/domain"
	"github.com/smallbiznis/fieldbooks/internal/viewcache"
)

// UploadAttachment takes a multipart form with entity_type, entity_id and a file part named "file".
func (s *Server) UploadAttachment(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		AbortWithError(c, newValidationError("file", "invalid_file", "file is required"))
		return
	}

	body, err := file.Open()
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	defer body.Close()

	contentType := file.Header.Get("Content-Type")
	resp, err := s.attachmentSvc.Upload(c.Request.Context(), attachmentdomain.UploadRequest{
		EntityType:  attachmentdomain.EntityType(strings.TrimSpace(c.PostForm("entity_type"))),
		EntityID:    strings.TrimSpace(c.PostForm("entity_id")),
		Filename:    file.Filename,
		ContentType: contentType,
		Body:        body,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusCreated, resp, nil)
}

func (s *Server) ListAttachments(c *gin.Context) {
	entityType := attachmentdomain.EntityType(strings.TrimSpace(c.Query("entity_type")))
	entityID := strings.TrimSpace(c.Query("entity_id"))

	resp, err := cachedView(s, c, viewcache.GroupAttachments, func(ctx context.Context) ([]attachmentdomain.Attachment, error) {
		return s.attachmentSvc.List(ctx, entityType, entityID)
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp, nil)
}

func (s *Server) GetAttachment(c *gin.Context) {
	resp, err := s.attachmentSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp, nil)
}

func (s *Server) DownloadAttachment(c *gin.Context) {
	att, content, err := s.attachmentSvc.Open(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	defer content.Close()

	contentType := att.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, att.Size, contentType, content, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", att.Filename),
	})
}

func (s *Server) DeleteAttachment(c *gin.Context) {
	if err := s.attachmentSvc.Delete(c.Request.Context(), strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
