package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"transcript-assistant/internal/ai"
	"transcript-assistant/internal/app"
	"transcript-assistant/internal/pkg/pdfextract"
	"transcript-assistant/internal/transport/http/middleware"
	"transcript-assistant/internal/transport/http/response"
)

type errorMapping struct {
	target error
	status int
	code   int
}

var errorMappings = []errorMapping{
	{app.ErrInvalidInput, http.StatusBadRequest, response.CodeBadRequest},
	{app.ErrMessageEmpty, http.StatusBadRequest, response.CodeBadRequest},
	{app.ErrLLMConfig, http.StatusBadRequest, response.CodeBadRequest},
	{app.ErrQueryEmpty, http.StatusBadRequest, response.CodeEmptyQuery},
	{app.ErrTranscriptEmpty, http.StatusBadRequest, response.CodeEmptyTranscript},
	{app.ErrUnknownSource, http.StatusBadRequest, response.CodeUnknownSource},
	{app.ErrUsernameExists, http.StatusBadRequest, response.CodeUsernameExists},
	{app.ErrEmailExists, http.StatusBadRequest, response.CodeEmailExists},
	{app.ErrInvalidCredential, http.StatusUnauthorized, response.CodeInvalidCredentials},
	{app.ErrConversationNotFound, http.StatusNotFound, response.CodeConversationNotFound},
	{app.ErrTranscriptNotFound, http.StatusNotFound, response.CodeTranscriptNotFound},
	{app.ErrChunkNotFound, http.StatusNotFound, response.CodeChunkNotFound},
	{pdfextract.ErrTooLarge, http.StatusRequestEntityTooLarge, response.CodePayloadTooLarge},
	{app.ErrMessageEnqueue, http.StatusServiceUnavailable, response.CodeServiceUnavailable},
	{ai.ErrEmptyCompletion, http.StatusBadGateway, response.CodeUpstreamFailed},
}

// writeError maps service errors to a status and business code. Unknown errors are logged and
// reported as fallback without detail.
func writeError(c *gin.Context, err error, fallback string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			response.Error(c, m.status, m.code, m.target.Error())
			return
		}
	}
	_ = c.Error(err)
	response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
}

func currentUserID(c *gin.Context) (uint, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
	}
	return userID, ok
}

func parseUintParam(c *gin.Context, key string) (uint, bool) {
	u, err := strconv.ParseUint(c.Param(key), 10, 64)
	if err != nil || u == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid "+key)
		return 0, false
	}
	return uint(u), true
}
