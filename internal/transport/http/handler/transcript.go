package handler

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"transcript-assistant/internal/app"
	"transcript-assistant/internal/model"
	"transcript-assistant/internal/pkg/pdfextract"
	"transcript-assistant/internal/transport/http/response"
)

type TranscriptAPI interface {
	Create(ctx context.Context, input app.CreateTranscriptInput) (*app.CreateTranscriptResult, error)
	Upload(ctx context.Context, input app.UploadTranscriptInput) (*app.CreateTranscriptResult, error)
	List(userID uint, source string) ([]model.Transcript, error)
	Get(userID, transcriptID uint) (*model.Transcript, error)
	Delete(userID, transcriptID uint) error
	Chunks(userID, transcriptID uint) (*app.TranscriptChunks, error)
	Rechunk(ctx context.Context, userID, transcriptID uint) (*app.ChunkSchedule, error)
	TagUntagged(ctx context.Context, userID uint) (*app.TagResult, error)
}

type TranscriptHandler struct {
	transcripts TranscriptAPI
}

type CreateTranscriptRequest struct {
	Title   string `json:"title" binding:"max=255"`
	Content string `json:"content" binding:"required"`
	Source  string `json:"source" binding:"max=64"`
}

func NewTranscriptHandler(transcripts TranscriptAPI) *TranscriptHandler {
	return &TranscriptHandler{transcripts: transcripts}
}

func (h *TranscriptHandler) Create(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req CreateTranscriptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.transcripts.Create(c.Request.Context(), app.CreateTranscriptInput{
		UserID:  userID,
		Title:   req.Title,
		Content: req.Content,
		Source:  req.Source,
	})
	if err != nil {
		writeError(c, err, "create transcript failed")
		return
	}
	response.OK(c, result)
}

// Upload accepts a multipart PDF in the "file" field with optional title and source fields.
func (h *TranscriptHandler) Upload(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "file is required")
		return
	}
	if !strings.EqualFold(filepath.Ext(header.Filename), ".pdf") {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "only pdf files are supported")
		return
	}
	if header.Size > pdfextract.MaxSize {
		response.Error(c, http.StatusRequestEntityTooLarge, response.CodePayloadTooLarge, pdfextract.ErrTooLarge.Error())
		return
	}

	file, err := header.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "read uploaded file failed")
		return
	}
	defer file.Close()

	result, err := h.transcripts.Upload(c.Request.Context(), app.UploadTranscriptInput{
		UserID:   userID,
		Title:    c.PostForm("title"),
		Source:   c.PostForm("source"),
		FileName: header.Filename,
		File:     file,
	})
	if err != nil {
		writeError(c, err, "upload transcript failed")
		return
	}
	response.OK(c, result)
}

func (h *TranscriptHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	transcripts, err := h.transcripts.List(userID, c.Query("source"))
	if err != nil {
		writeError(c, err, "list transcripts failed")
		return
	}
	response.OK(c, transcripts)
}

func (h *TranscriptHandler) Get(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	transcript, err := h.transcripts.Get(userID, id)
	if err != nil {
		writeError(c, err, "get transcript failed")
		return
	}
	response.OK(c, transcript)
}

func (h *TranscriptHandler) Delete(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	if err := h.transcripts.Delete(userID, id); err != nil {
		writeError(c, err, "delete transcript failed")
		return
	}
	response.OK(c, gin.H{"deleted_transcript_id": id})
}

func (h *TranscriptHandler) Chunks(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	chunks, err := h.transcripts.Chunks(userID, id)
	if err != nil {
		writeError(c, err, "list chunks failed")
		return
	}
	response.OK(c, chunks)
}

func (h *TranscriptHandler) Rechunk(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	schedule, err := h.transcripts.Rechunk(c.Request.Context(), userID, id)
	if err != nil {
		writeError(c, err, "rechunk transcript failed")
		return
	}
	response.OK(c, schedule)
}

func (h *TranscriptHandler) Tag(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	result, err := h.transcripts.TagUntagged(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err, "tag transcripts failed")
		return
	}
	response.OK(c, result)
}
