package sessions

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sharoncxu/weather-agent/models"
	"github.com/sharoncxu/weather-agent/stores"
)

const defaultMaxRounds = 8

// ClearedNotice is what LatestAnswer reports after a clear, until the next
// turn completes.
const ClearedNotice = "Message history cleared. Please request weather information."

// NewChatSession creates a chat session for one conversation.
func NewChatSession(conversationID string, agent AgentInterface, store stores.MessageStore, config Config) *ChatSession {
	if config.MaxRounds <= 0 {
		config.MaxRounds = defaultMaxRounds
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = 500 * time.Millisecond
	}
	logger := log.New(os.Stdout, fmt.Sprintf("[CHAT %s] ", conversationID), log.LstdFlags)

	return &ChatSession{
		Agent:          agent,
		ConversationID: conversationID,
		Store:          store,
		Config:         config,
		Logger:         logger,
	}
}

// HandleUserMessage runs one full turn: record the user's message, then loop
// model completions and tool executions until the model produces a final
// answer or the round bound is hit. Turns are atomic from the caller's view;
// a concurrent call gets a busy error and leaves history untouched.
func (s *ChatSession) HandleUserMessage(ctx context.Context, text string) (models.FinalAnswer, error) {
	if !s.mu.TryLock() {
		return models.FinalAnswer{}, models.SessionBusy("a turn is already in progress")
	}
	defer s.mu.Unlock()

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return models.FinalAnswer{}, models.InvalidInput("message must not be empty")
	}

	if err := s.ensureSystemPrompt(); err != nil {
		return s.failTurn(fmt.Sprintf("could not prepare conversation: %v", err)), nil
	}

	userParts := []models.Part{{Text: trimmed}}
	if err := s.Store.SaveMessage(s.ConversationID, stores.RoleUser, stores.TypeUserMessage, userParts, ""); err != nil {
		return s.failTurn(fmt.Sprintf("could not record message: %v", err)), nil
	}

	for round := 1; round <= s.Config.MaxRounds; round++ {
		if ctx.Err() != nil {
			return s.abandonTurn(ctx.Err()), nil
		}

		history, err := s.Store.FetchHistory(s.ConversationID)
		if err != nil {
			return s.failTurn(fmt.Sprintf("could not load history: %v", err)), nil
		}

		outcome, err := s.completeWithRetry(ctx, history)
		if err != nil {
			if ctx.Err() != nil {
				return s.abandonTurn(ctx.Err()), nil
			}
			s.Logger.Printf("Model completion failed on round %d: %v", round, err)
			return s.failTurn(fmt.Sprintf("model error: %v", err)), nil
		}

		if outcome.Kind == models.OutcomeFinalText {
			answerParts := []models.Part{{Text: outcome.Text}}
			if err := s.Store.SaveMessage(s.ConversationID, stores.RoleAssistant, stores.TypeAssistantMessage, answerParts, ""); err != nil {
				return s.failTurn(fmt.Sprintf("could not record answer: %v", err)), nil
			}
			answer := models.FinalAnswer{Text: outcome.Text, Status: models.AnswerSuccess}
			s.setLastAnswer(answer)
			return answer, nil
		}

		s.Logger.Printf("Round %d: model requested %d tool call(s)", round, len(outcome.ToolCalls))

		callParts := make([]models.Part, 0, len(outcome.ToolCalls))
		for _, call := range outcome.ToolCalls {
			callParts = append(callParts, models.Part{FunctionCall: &models.FunctionCall{
				ID:   call.Tool_ID,
				Name: call.Tool_Name,
				Args: call.Args,
			}})
		}
		if err := s.Store.SaveMessage(s.ConversationID, stores.RoleAssistant, stores.TypeToolCall, callParts, ""); err != nil {
			return s.failTurn(fmt.Sprintf("could not record tool calls: %v", err)), nil
		}

		results := s.executeToolCalls(ctx, outcome.ToolCalls)

		// Results are recorded in the model's requested order regardless of
		// completion order.
		for _, result := range results {
			resultParts := []models.Part{{FunctionResponse: &models.FunctionResponse{
				ID:       result.Tool_ID,
				Name:     result.Tool_Name,
				Success:  result.Success,
				Response: result.ResponseMap(),
			}}}
			if err := s.Store.SaveMessage(s.ConversationID, stores.RoleTool, stores.TypeToolResult, resultParts, result.Tool_ID); err != nil {
				return s.failTurn(fmt.Sprintf("could not record tool result: %v", err)), nil
			}
		}
	}

	s.Logger.Printf("Turn hit the round limit of %d without a final answer", s.Config.MaxRounds)
	s.saveSystemNote(fmt.Sprintf("Turn stopped after %d tool rounds without a final answer.", s.Config.MaxRounds))
	answer := models.FinalAnswer{
		Text:   "I couldn't finish answering within the allowed number of tool calls. Please try again or ask a simpler question.",
		Status: models.AnswerIncomplete,
	}
	s.setLastAnswer(answer)
	return answer, nil
}

// completeWithRetry calls the model once, retrying a single time on a
// transient failure.
func (s *ChatSession) completeWithRetry(ctx context.Context, history []stores.Message) (models.Model_Outcome, error) {
	outcome, err := s.Agent.Complete(ctx, history)
	if err == nil || !models.IsRetryable(err) || ctx.Err() != nil {
		return outcome, err
	}

	s.Logger.Printf("Transient model failure, retrying in %v: %v", s.Config.RetryBackoff, err)
	select {
	case <-time.After(s.Config.RetryBackoff):
	case <-ctx.Done():
		return models.Model_Outcome{}, ctx.Err()
	}

	return s.Agent.Complete(ctx, history)
}

func (s *ChatSession) executeToolCalls(ctx context.Context, calls []models.Tool_Call) []models.Tool_Result {
	results := make([]models.Tool_Result, len(calls))

	if s.Config.ParallelTools && len(calls) > 1 {
		var wg sync.WaitGroup
		for i, call := range calls {
			s.emitToolCall(call)
			wg.Add(1)
			go func(i int, call models.Tool_Call) {
				defer wg.Done()
				results[i] = s.Agent.ExecuteTool(ctx, call)
			}(i, call)
		}
		wg.Wait()
	} else {
		for i, call := range calls {
			s.emitToolCall(call)
			results[i] = s.Agent.ExecuteTool(ctx, call)
		}
	}

	for _, result := range results {
		s.emitToolResult(result)
	}
	return results
}

// SetEvents attaches or detaches (nil) the event sink. Safe to call while a
// turn is running on another goroutine.
func (s *ChatSession) SetEvents(sink EventSink) {
	s.evMu.Lock()
	s.events = sink
	s.evMu.Unlock()
}

func (s *ChatSession) eventSink() EventSink {
	s.evMu.Lock()
	defer s.evMu.Unlock()
	return s.events
}

func (s *ChatSession) emitToolCall(call models.Tool_Call) {
	if sink := s.eventSink(); sink != nil {
		sink.ToolCallRequested(call)
	}
}

func (s *ChatSession) emitToolResult(result models.Tool_Result) {
	if sink := s.eventSink(); sink != nil {
		sink.ToolResultReady(result)
	}
}

// failTurn records a diagnostic note and closes the turn with a failed
// answer. History stays valid for the next turn.
func (s *ChatSession) failTurn(reason string) models.FinalAnswer {
	s.saveSystemNote("Turn failed: " + reason)
	answer := models.FinalAnswer{
		Text:   "Error processing message: " + reason,
		Status: models.AnswerFailed,
	}
	s.setLastAnswer(answer)
	return answer
}

// abandonTurn closes out a turn whose context was canceled mid-flight. The
// note keeps the partial history explicable to the next reader.
func (s *ChatSession) abandonTurn(cause error) models.FinalAnswer {
	s.Logger.Printf("Turn abandoned: %v", cause)
	s.saveSystemNote(fmt.Sprintf("Turn abandoned: %v", cause))
	answer := models.FinalAnswer{
		Text:   "The request was canceled before an answer was ready.",
		Status: models.AnswerFailed,
	}
	s.setLastAnswer(answer)
	return answer
}

func (s *ChatSession) saveSystemNote(note string) {
	parts := []models.Part{{Text: note}}
	if err := s.Store.SaveMessage(s.ConversationID, stores.RoleSystem, stores.TypeSystemNote, parts, ""); err != nil {
		s.Logger.Printf("Failed to save system note: %v", err)
	}
}

// ensureSystemPrompt seeds the system prompt as the first history entry of a
// fresh conversation.
func (s *ChatSession) ensureSystemPrompt() error {
	if s.Config.SystemPrompt == "" {
		return nil
	}
	history, err := s.Store.FetchHistory(s.ConversationID)
	if err != nil {
		return err
	}
	if len(history) > 0 {
		return nil
	}
	parts := []models.Part{{Text: s.Config.SystemPrompt}}
	return s.Store.SaveMessage(s.ConversationID, stores.RoleSystem, stores.TypeSystemPrompt, parts, "")
}

// History returns the full stored history, system rows included.
func (s *ChatSession) History() ([]stores.Message, error) {
	return s.Store.FetchHistory(s.ConversationID)
}

// DisplayHistory returns the history as shown to users: system prompt and
// diagnostic notes are filtered out.
func (s *ChatSession) DisplayHistory() ([]stores.Message, error) {
	history, err := s.Store.FetchHistory(s.ConversationID)
	if err != nil {
		return nil, err
	}
	visible := make([]stores.Message, 0, len(history))
	for _, m := range history {
		if m.Role == stores.RoleSystem {
			continue
		}
		visible = append(visible, m)
	}
	return visible, nil
}

// Clear erases the conversation. Clearing an already empty conversation
// succeeds. The session stays usable afterwards.
func (s *ChatSession) Clear() error {
	if !s.mu.TryLock() {
		return models.SessionBusy("a turn is already in progress")
	}
	defer s.mu.Unlock()

	if err := s.Store.ClearHistory(s.ConversationID); err != nil {
		return err
	}

	s.setLastAnswer(models.FinalAnswer{Text: ClearedNotice, Status: models.AnswerSuccess})

	if s.Config.ReseedSystemPrompt {
		return s.ensureSystemPrompt()
	}
	return nil
}

// LatestAnswer returns the most recent final answer. After a clear it
// reports the cleared notice until the next turn completes; before any turn
// it reports nothing.
func (s *ChatSession) LatestAnswer() (models.FinalAnswer, bool) {
	s.ansMu.Lock()
	defer s.ansMu.Unlock()
	if s.lastAnswer == nil {
		return models.FinalAnswer{}, false
	}
	return *s.lastAnswer, true
}

func (s *ChatSession) setLastAnswer(answer models.FinalAnswer) {
	s.ansMu.Lock()
	s.lastAnswer = &answer
	s.ansMu.Unlock()
}
