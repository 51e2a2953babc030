package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CodeOK                   = 0
	CodeBadRequest           = 40000
	CodeUsernameExists       = 40001
	CodeEmailExists          = 40002
	CodeEmptyQuery           = 40003
	CodeEmptyTranscript      = 40004
	CodeUnknownSource        = 40005
	CodeUnauthorized         = 40100
	CodeInvalidCredentials   = 40101
	CodeConversationNotFound = 40401
	CodeTranscriptNotFound   = 40402
	CodeChunkNotFound        = 40403
	CodePayloadTooLarge      = 41300
	CodeInternalServer       = 50000
	CodeUpstreamFailed       = 50200
	CodeServiceUnavailable   = 50300
)

type APIResponse struct {
	Code      int         `json:"code"`
	Message   string      `json:"message"`
	RequestID string      `json:"request_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// RequestIDKey is the gin context key holding the request id.
const RequestIDKey = "request_id"

func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{
		Code:      CodeOK,
		Message:   "ok",
		RequestID: c.GetString(RequestIDKey),
		Data:      data,
	})
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, APIResponse{
		Code:      code,
		Message:   message,
		RequestID: c.GetString(RequestIDKey),
	})
}
