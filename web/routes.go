package web

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/sharoncxu/weather-agent/models"
	"github.com/sharoncxu/weather-agent/sessions"
	"github.com/sharoncxu/weather-agent/stores"
)

const (
	defaultCity         = "Seattle"
	weatherPromptFormat = "I'm in %s. What do I need to do before leaving the house?"

	noResponseYet = "No weather data available yet. Please request weather information first."
)

// Handler exposes one chat session over HTTP and WebSocket.
type Handler struct {
	Session   *sessions.ChatSession
	Logger    *log.Logger
	StaticDir string

	upgrader websocket.Upgrader
}

// NewHandler creates an HTTP handler around a chat session.
func NewHandler(session *sessions.ChatSession) *Handler {
	return &Handler{
		Session: session,
		Logger:  log.New(os.Stdout, "[WEB] ", log.LstdFlags),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// WithStaticDir serves a frontend from the given directory
func (h *Handler) WithStaticDir(dir string) *Handler {
	h.StaticDir = dir
	return h
}

// Register mounts all routes on the engine.
func (h *Handler) Register(r *gin.Engine) {
	api := r.Group("/api")
	{
		api.POST("/send_message", h.sendMessage)
		api.GET("/weather", h.weather)
		api.GET("/model_response", h.modelResponse)
		api.GET("/message_history", h.messageHistory)
		api.POST("/clear_history", h.clearHistory)
	}

	r.GET("/ws/chat", h.chatSocket)

	if h.StaticDir != "" {
		r.StaticFile("/", filepath.Join(h.StaticDir, "index.html"))
		r.Static("/static", h.StaticDir)
	}
}

type sendMessageRequest struct {
	Message string `json:"message"`
}

func (h *Handler) sendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message is required"})
		return
	}

	answer, err := h.Session.HandleUserMessage(c.Request.Context(), req.Message)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"response": answer.Text,
		"message":  req.Message,
		"status":   answer.Status,
	})
}

func (h *Handler) weather(c *gin.Context) {
	city := c.DefaultQuery("city", defaultCity)
	message := fmt.Sprintf(weatherPromptFormat, city)

	answer, err := h.Session.HandleUserMessage(c.Request.Context(), message)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"weatherInfo": answer.Text,
		"city":        city,
	})
}

func (h *Handler) modelResponse(c *gin.Context) {
	answer, ok := h.Session.LatestAnswer()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"modelResponse": noResponseYet})
		return
	}
	c.JSON(http.StatusOK, gin.H{"modelResponse": answer.Text})
}

func (h *Handler) messageHistory(c *gin.Context) {
	history, err := h.Session.DisplayHistory()
	if err != nil {
		h.Logger.Printf("Failed to load history: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}

	entries := make([]gin.H, 0, len(history))
	for _, msg := range history {
		entries = append(entries, gin.H{
			"role":    msg.Role,
			"content": renderContent(msg),
		})
	}

	c.JSON(http.StatusOK, gin.H{"messageHistory": entries})
}

func (h *Handler) clearHistory(c *gin.Context) {
	if err := h.Session.Clear(); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": sessions.ClearedNotice,
	})
}

func (h *Handler) chatSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	ws := sessions.NewWebSocketSession(conn, h.Session)
	ws.Run(c.Request.Context())
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch models.CodeOf(err) {
	case models.ErrInvalidInput:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case models.ErrSessionBusy:
		c.JSON(http.StatusConflict, gin.H{"error": "another message is being processed"})
	default:
		h.Logger.Printf("Request failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// renderContent flattens a stored message for the history endpoint. A turn
// that is a single text part renders as a plain string; anything richer
// renders as a list of typed parts.
func renderContent(msg stores.Message) interface{} {
	parts, err := msg.Parts()
	if err != nil {
		return msg.PartsJSON
	}

	if len(parts) == 1 && parts[0].Text != "" && parts[0].FunctionCall == nil && parts[0].FunctionResponse == nil {
		return parts[0].Text
	}

	rendered := make([]gin.H, 0, len(parts))
	for _, part := range parts {
		switch {
		case part.FunctionCall != nil:
			rendered = append(rendered, gin.H{
				"type": "function_call",
				"content": gin.H{
					"id":   part.FunctionCall.ID,
					"name": part.FunctionCall.Name,
					"args": part.FunctionCall.Args,
				},
			})
		case part.FunctionResponse != nil:
			rendered = append(rendered, gin.H{
				"type": "function_response",
				"content": gin.H{
					"id":       part.FunctionResponse.ID,
					"name":     part.FunctionResponse.Name,
					"success":  part.FunctionResponse.Success,
					"response": part.FunctionResponse.Response,
				},
			})
		default:
			rendered = append(rendered, gin.H{
				"type": "text",
				"text": part.Text,
			})
		}
	}
	return rendered
}
