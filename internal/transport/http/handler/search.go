package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"transcript-assistant/internal/app"
	"transcript-assistant/internal/model"
	"transcript-assistant/internal/retrieval"
	"transcript-assistant/internal/transport/http/response"
)

type SearchAPI interface {
	Search(ctx context.Context, input app.SearchInput) ([]retrieval.Result, error)
	Classify(title, content string) retrieval.SourceCategory
	Sources() []retrieval.SourceCategory
	Feedback(input app.FeedbackInput) (*model.ChunkFeedback, error)
}

type SearchHandler struct {
	search SearchAPI
}

type SearchRequest struct {
	Query  string `json:"query" binding:"required,max=2000"`
	Source string `json:"source" binding:"max=64"`
}

type ClassifyRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type FeedbackRequest struct {
	Relevant *bool `json:"relevant" binding:"required"`
}

func NewSearchHandler(search SearchAPI) *SearchHandler {
	return &SearchHandler{search: search}
}

func (h *SearchHandler) Search(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	results, err := h.search.Search(c.Request.Context(), app.SearchInput{
		UserID: userID,
		Query:  req.Query,
		Source: req.Source,
	})
	if err != nil {
		writeError(c, err, "search failed")
		return
	}
	if results == nil {
		results = []retrieval.Result{}
	}
	response.OK(c, gin.H{"query": req.Query, "results": results})
}

func (h *SearchHandler) Classify(c *gin.Context) {
	var req ClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	if req.Title == "" && req.Content == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "title or content is required")
		return
	}
	response.OK(c, h.search.Classify(req.Title, req.Content))
}

func (h *SearchHandler) Sources(c *gin.Context) {
	response.OK(c, h.search.Sources())
}

func (h *SearchHandler) Feedback(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	chunkID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	feedback, err := h.search.Feedback(app.FeedbackInput{
		UserID:   userID,
		ChunkID:  chunkID,
		Relevant: *req.Relevant,
	})
	if err != nil {
		writeError(c, err, "record feedback failed")
		return
	}
	response.OK(c, feedback)
}
