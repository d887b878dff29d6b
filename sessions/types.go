package sessions

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/sharoncxu/weather-agent/models"
	"github.com/sharoncxu/weather-agent/stores"
)

// AgentInterface defines the interface that agents must implement
type AgentInterface interface {
	// Tools lists the declarations advertised to the model.
	Tools() []models.FunctionDeclaration
	// Complete runs one model completion over the full history.
	Complete(ctx context.Context, history []stores.Message) (models.Model_Outcome, error)
	// ExecuteTool runs one requested tool call. Failures come back as an
	// unsuccessful result, never as an abort.
	ExecuteTool(ctx context.Context, call models.Tool_Call) models.Tool_Result
}

// EventSink receives progress notifications while a turn runs. Used by the
// WebSocket session to stream tool activity to the client.
type EventSink interface {
	ToolCallRequested(call models.Tool_Call)
	ToolResultReady(result models.Tool_Result)
}

// Config controls how a chat session runs its turns.
type Config struct {
	// MaxRounds bounds model completions per user message.
	MaxRounds int
	// SystemPrompt is seeded as the first history entry.
	SystemPrompt string
	// ReseedSystemPrompt re-inserts the system prompt after Clear.
	ReseedSystemPrompt bool
	// ParallelTools executes a round's tool calls concurrently. Results are
	// recorded in request order either way.
	ParallelTools bool
	// RetryBackoff is the pause before retrying a transient model failure.
	RetryBackoff time.Duration
}

// ChatSession mediates one conversation between a user, the model, and the
// tool server. Turns are serialized: a second message while one is in flight
// is rejected, not queued.
type ChatSession struct {
	Agent          AgentInterface
	ConversationID string
	Store          stores.MessageStore
	Config         Config
	Logger         *log.Logger

	mu sync.Mutex // held for the duration of a turn

	evMu   sync.Mutex
	events EventSink // optional, attached by the WebSocket session

	ansMu      sync.Mutex
	lastAnswer *models.FinalAnswer
}
