package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"ragdoll/internal/app"
	"ragdoll/internal/transport/http/response"
)

// multipartOverhead is the slack allowed on top of the file limit for form boundaries and headers.
const multipartOverhead = 1 << 20

type DocQAHandler struct {
	service        *app.DocQAService
	maxUploadBytes int64
}

type QueryRequest struct {
	Query string `json:"query"`
}

type QueryResponse struct {
	Response string `json:"response"`
}

func NewDocQAHandler(service *app.DocQAService, maxUploadBytes int64) *DocQAHandler {
	return &DocQAHandler{service: service, maxUploadBytes: maxUploadBytes}
}

// Upload accepts a multipart form with a "file" field holding one PDF and makes it the live document.
func (h *DocQAHandler) Upload(c *gin.Context) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+multipartOverhead)
	}

	file, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, http.StatusRequestEntityTooLarge, response.CodeFileTooLarge, h.tooLargeMessage())
			return
		}
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file field")
		return
	}

	f, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}
	defer f.Close()

	result, err := h.service.Upload(c.Request.Context(), app.UploadInput{
		Filename:    file.Filename,
		ContentType: file.Header.Get("Content-Type"),
		Size:        file.Size,
		Body:        f,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, result)
}

func (h *DocQAHandler) Query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.service.Query(c.Request.Context(), req.Query)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, QueryResponse{Response: result.Response})
}

func (h *DocQAHandler) Status(c *gin.Context) {
	response.OK(c, h.service.Status())
}

func (h *DocQAHandler) Clear(c *gin.Context) {
	if h.service.Clear(c.Request.Context()) {
		response.Message(c, "Index cleared")
		return
	}
	response.Message(c, "No document was loaded")
}

func (h *DocQAHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, app.ErrUnsupportedFile):
		response.Error(c, http.StatusUnsupportedMediaType, response.CodeUnsupportedFile, err.Error())
	case errors.Is(err, app.ErrFileTooLarge):
		response.Error(c, http.StatusRequestEntityTooLarge, response.CodeFileTooLarge, h.tooLargeMessage())
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrExtraction):
		response.Error(c, http.StatusBadRequest, response.CodeExtractionFailed, err.Error())
	case errors.Is(err, app.ErrCanceled):
		response.Error(c, http.StatusRequestTimeout, response.CodeRequestCanceled, "request canceled before it completed")
	case errors.Is(err, app.ErrProviderTimeout):
		response.Error(c, http.StatusGatewayTimeout, response.CodeProviderTimeout, "model provider timed out")
	case errors.Is(err, app.ErrProvider):
		response.Error(c, http.StatusBadGateway, response.CodeProvider, "model provider error: "+err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "internal error")
	}
}

func (h *DocQAHandler) tooLargeMessage() string {
	return fmt.Sprintf("file too large (max %dMB)", h.maxUploadBytes>>20)
}
