package sessions

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/sharoncxu/weather-agent/models"
)

// WebSocketWriter handles all WebSocket communication
type WebSocketWriter struct {
	Conn   *websocket.Conn
	Logger *log.Logger
	mu     sync.Mutex
}

func (w *WebSocketWriter) WriteResponse(resp interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.Conn.WriteJSON(resp)
}

func (w *WebSocketWriter) WriteError(message string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.Conn.WriteJSON(map[string]string{"type": "error", "error": message})
}

func (w *WebSocketWriter) WriteDone() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.Conn.WriteJSON(map[string]string{"type": "done"})
}

// ToolCallRequested streams a tool invocation notice to the client.
func (w *WebSocketWriter) ToolCallRequested(call models.Tool_Call) {
	msg := map[string]interface{}{
		"type":      "tool_call",
		"tool_name": call.Tool_Name,
		"tool_id":   call.Tool_ID,
		"args":      call.Args,
	}
	if err := w.WriteResponse(msg); err != nil {
		w.Logger.Printf("Failed to send tool_call event: %v", err)
	}
}

// ToolResultReady streams a finished tool result to the client.
func (w *WebSocketWriter) ToolResultReady(result models.Tool_Result) {
	msg := map[string]interface{}{
		"type":      "tool_result",
		"tool_name": result.Tool_Name,
		"tool_id":   result.Tool_ID,
		"success":   result.Success,
		"result":    result.ResponseMap(),
	}
	if err := w.WriteResponse(msg); err != nil {
		w.Logger.Printf("Failed to send tool_result event: %v", err)
	}
}

// clientMessage is what the frontend sends over the socket.
type clientMessage struct {
	Message string `json:"message"`
}

// WebSocketSession drives a ChatSession over a WebSocket connection,
// streaming tool activity as it happens.
type WebSocketSession struct {
	Session *ChatSession
	Writer  *WebSocketWriter
	Logger  *log.Logger
}

// NewWebSocketSession wires a WebSocket connection to an existing chat
// session. The writer becomes the session's event sink for the lifetime of
// the socket.
func NewWebSocketSession(conn *websocket.Conn, session *ChatSession) *WebSocketSession {
	logger := log.New(os.Stdout, fmt.Sprintf("[WS %s] ", session.ConversationID), log.LstdFlags)
	writer := &WebSocketWriter{
		Conn:   conn,
		Logger: logger,
	}
	session.SetEvents(writer)

	return &WebSocketSession{
		Session: session,
		Writer:  writer,
		Logger:  logger,
	}
}

// Run reads messages until the connection closes. One turn runs at a time;
// messages sent while a turn is in flight get a busy error back.
func (ws *WebSocketSession) Run(ctx context.Context) {
	defer func() {
		ws.Session.SetEvents(nil)
		ws.Writer.Conn.Close()
	}()

	for {
		var incoming clientMessage
		if err := ws.Writer.Conn.ReadJSON(&incoming); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ws.Logger.Printf("WebSocket read error: %v", err)
			}
			return
		}

		answer, err := ws.Session.HandleUserMessage(ctx, incoming.Message)
		if err != nil {
			ws.Writer.WriteError(err.Error())
			continue
		}

		final := map[string]interface{}{
			"type":     "final",
			"response": answer.Text,
			"status":   string(answer.Status),
		}
		if err := ws.Writer.WriteResponse(final); err != nil {
			ws.Logger.Printf("Failed to send final answer: %v", err)
			return
		}
		ws.Writer.WriteDone()
	}
}
