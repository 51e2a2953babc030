package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"transcript-assistant/internal/app"
	"transcript-assistant/internal/model"
	"transcript-assistant/internal/transport/http/response"
)

type ChatAPI interface {
	CreateConversation(input app.CreateConversationInput) (*model.Conversation, error)
	ListConversations(userID uint) ([]model.Conversation, error)
	DeleteConversation(ctx context.Context, userID, conversationID uint) error
	SendMessage(ctx context.Context, input app.SendMessageInput) (*app.SendMessageResult, error)
	StreamMessage(ctx context.Context, input app.SendMessageInput,
		onCitations func([]app.Citation) error, onChunk func(string) error) (*app.StreamResult, error)
	GetHistory(ctx context.Context, userID, conversationID uint, limit int) ([]model.Message, error)
}

type ChatHandler struct {
	chatService ChatAPI
}

type CreateConversationRequest struct {
	Title string `json:"title" binding:"max=128"`
}

type SendMessageRequest struct {
	ConversationID uint       `json:"conversation_id" binding:"required,gt=0"`
	Content        string     `json:"content" binding:"required"`
	Source         string     `json:"source" binding:"max=64"`
	LLM            LLMRequest `json:"llm"`
}

type LLMRequest struct {
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key"`
	Model   string `json:"model"`
}

func NewChatHandler(chatService ChatAPI) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

func (h *ChatHandler) CreateConversation(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req CreateConversationRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
			return
		}
	}

	conversation, err := h.chatService.CreateConversation(app.CreateConversationInput{
		UserID: userID,
		Title:  req.Title,
	})
	if err != nil {
		writeError(c, err, "create conversation failed")
		return
	}
	response.OK(c, conversation)
}

func (h *ChatHandler) ListConversations(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	conversations, err := h.chatService.ListConversations(userID)
	if err != nil {
		writeError(c, err, "list conversations failed")
		return
	}
	response.OK(c, conversations)
}

func (h *ChatHandler) DeleteConversation(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	conversationID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	if err := h.chatService.DeleteConversation(c.Request.Context(), userID, conversationID); err != nil {
		writeError(c, err, "delete conversation failed")
		return
	}
	response.OK(c, gin.H{"deleted_conversation_id": conversationID})
}

func (h *ChatHandler) SendMessage(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.chatService.SendMessage(c.Request.Context(), req.input(userID))
	if err != nil {
		writeError(c, err, "send message failed")
		return
	}
	response.OK(c, result)
}

// StreamMessage answers over server-sent events: one "citations" event, unnamed data events for
// each generated chunk, then "done" or "error".
func (h *ChatHandler) StreamMessage(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "stream not supported")
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	write := func(frame string) error {
		if _, err := c.Writer.Write([]byte(frame)); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	result, err := h.chatService.StreamMessage(c.Request.Context(), req.input(userID),
		func(citations []app.Citation) error {
			payload, err := json.Marshal(citations)
			if err != nil {
				return err
			}
			return write("event: citations\ndata: " + string(payload) + "\n\n")
		},
		func(chunk string) error {
			return write("data: " + sanitizeSSE(chunk) + "\n\n")
		},
	)
	if err != nil {
		_ = c.Error(err)
		msg := err.Error()
		if errors.Is(err, app.ErrMessageEnqueue) {
			msg = "message enqueue failed"
		}
		_ = write(fmt.Sprintf("event: error\ndata: %s\n\n", sanitizeSSE(msg)))
		return
	}

	_ = write("event: done\ndata: " + sanitizeSSE(result.Content) + "\n\n")
}

func (h *ChatHandler) GetHistory(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	conversationID, err := strconv.ParseUint(c.Query("conversation_id"), 10, 64)
	if err != nil || conversationID == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid conversation_id")
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if parsed, parseErr := strconv.Atoi(raw); parseErr == nil {
			limit = parsed
		}
	}

	history, err := h.chatService.GetHistory(c.Request.Context(), userID, uint(conversationID), limit)
	if err != nil {
		writeError(c, err, "get history failed")
		return
	}
	response.OK(c, history)
}

func (r SendMessageRequest) input(userID uint) app.SendMessageInput {
	return app.SendMessageInput{
		UserID:         userID,
		ConversationID: r.ConversationID,
		Content:        r.Content,
		Source:         r.Source,
		LLM: app.LLMOverride{
			BaseURL: r.LLM.BaseURL,
			APIKey:  r.LLM.APIKey,
			Model:   r.LLM.Model,
		},
	}
}

func sanitizeSSE(input string) string {
	replaced := strings.ReplaceAll(input, "\r\n", "\\n")
	replaced = strings.ReplaceAll(replaced, "\n", "\\n")
	return replaced
}
