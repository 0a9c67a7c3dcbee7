package response

import "github.com/gin-gonic/gin"

const (
	CodeBadRequest       = 40000
	CodeExtractionFailed = 40001
	CodeRequestCanceled  = 40800
	CodeFileTooLarge     = 41300
	CodeUnsupportedFile  = 41500
	CodeInternalServer   = 50000
	CodeProvider         = 50200
	CodeProviderTimeout  = 50400
)

// ErrorBody is the envelope for every non-2xx response.
type ErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type MessageBody struct {
	Message string `json:"message"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(200, data)
}

func Message(c *gin.Context, message string) {
	c.JSON(200, MessageBody{Message: message})
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.AbortWithStatusJSON(httpStatus, ErrorBody{
		Code:    code,
		Message: message,
	})
}
