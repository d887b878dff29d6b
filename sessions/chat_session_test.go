package sessions

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sharoncxu/weather-agent/models"
	"github.com/sharoncxu/weather-agent/stores"
)

// fakeAgent plays back a scripted sequence of completion outcomes. When the
// script runs out, the last entry repeats.
type fakeAgent struct {
	mu            sync.Mutex
	outcomes      []models.Model_Outcome
	errs          []error
	completeCalls int

	executeFn func(call models.Tool_Call) models.Tool_Result
	block     chan struct{} // when set, Complete waits until closed
}

func (f *fakeAgent) Tools() []models.FunctionDeclaration { return nil }

func (f *fakeAgent) Complete(ctx context.Context, history []stores.Message) (models.Model_Outcome, error) {
	f.mu.Lock()
	i := f.completeCalls
	f.completeCalls++
	f.mu.Unlock()

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return models.Model_Outcome{}, ctx.Err()
		}
	}

	if i < len(f.errs) && f.errs[i] != nil {
		return models.Model_Outcome{}, f.errs[i]
	}
	if i < len(f.outcomes) {
		return f.outcomes[i], nil
	}
	if len(f.outcomes) > 0 {
		return f.outcomes[len(f.outcomes)-1], nil
	}
	return models.Model_Outcome{Kind: models.OutcomeFinalText, Text: "done"}, nil
}

func (f *fakeAgent) ExecuteTool(ctx context.Context, call models.Tool_Call) models.Tool_Result {
	if f.executeFn != nil {
		return f.executeFn(call)
	}
	return models.Tool_Result{
		Tool_ID:   call.Tool_ID,
		Tool_Name: call.Tool_Name,
		Success:   true,
		Payload:   map[string]interface{}{"result": "ok"},
	}
}

func (f *fakeAgent) completions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completeCalls
}

func finalText(text string) models.Model_Outcome {
	return models.Model_Outcome{Kind: models.OutcomeFinalText, Text: text}
}

func toolCalls(calls ...models.Tool_Call) models.Model_Outcome {
	return models.Model_Outcome{Kind: models.OutcomeToolCalls, ToolCalls: calls}
}

func newTestSession(agent AgentInterface, config Config) *ChatSession {
	if config.SystemPrompt == "" {
		config.SystemPrompt = "be helpful"
	}
	return NewChatSession("conv-test", agent, stores.NewMemoryStore(), config)
}

func historyTypes(t *testing.T, s *ChatSession) []string {
	t.Helper()
	history, err := s.History()
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	types := make([]string, len(history))
	for i, m := range history {
		types[i] = m.Type
	}
	return types
}

func TestHandleUserMessageRejectsEmptyInput(t *testing.T) {
	s := newTestSession(&fakeAgent{}, Config{})

	for _, input := range []string{"", "   ", "\n\t"} {
		_, err := s.HandleUserMessage(context.Background(), input)
		if models.CodeOf(err) != models.ErrInvalidInput {
			t.Errorf("input %q: expected invalid_input, got %v", input, err)
		}
	}

	// A rejected message leaves no trace in history.
	history, _ := s.History()
	if len(history) != 0 {
		t.Errorf("expected empty history, got %d messages", len(history))
	}
}

func TestHandleUserMessageDirectAnswer(t *testing.T) {
	agent := &fakeAgent{outcomes: []models.Model_Outcome{finalText("Hello there.")}}
	s := newTestSession(agent, Config{})

	answer, err := s.HandleUserMessage(context.Background(), "hi")
	if err != nil {
		t.Fatalf("HandleUserMessage failed: %v", err)
	}
	if answer.Status != models.AnswerSuccess || answer.Text != "Hello there." {
		t.Errorf("unexpected answer: %+v", answer)
	}

	types := historyTypes(t, s)
	want := []string{stores.TypeSystemPrompt, stores.TypeUserMessage, stores.TypeAssistantMessage}
	if len(types) != len(want) {
		t.Fatalf("expected %v, got %v", want, types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], types[i])
		}
	}

	latest, ok := s.LatestAnswer()
	if !ok || latest.Text != "Hello there." {
		t.Errorf("latest answer not recorded: %+v ok=%v", latest, ok)
	}
}

func TestHandleUserMessageWeatherRound(t *testing.T) {
	agent := &fakeAgent{
		outcomes: []models.Model_Outcome{
			toolCalls(
				models.Tool_Call{Tool_ID: "call-w", Tool_Name: "get-weather", Args: map[string]interface{}{"city": "Seattle"}},
				models.Tool_Call{Tool_ID: "call-a", Tool_Name: "get-air-quality", Args: map[string]interface{}{"city": "Seattle"}},
			),
			finalText("Rainy with moderate air quality. Take an umbrella."),
		},
		executeFn: func(call models.Tool_Call) models.Tool_Result {
			payloads := map[string]string{
				"get-weather":     "52F, light rain",
				"get-air-quality": "AQI 60, moderate",
			}
			return models.Tool_Result{
				Tool_ID:   call.Tool_ID,
				Tool_Name: call.Tool_Name,
				Success:   true,
				Payload:   map[string]interface{}{"result": payloads[call.Tool_Name]},
			}
		},
	}
	s := newTestSession(agent, Config{})

	answer, err := s.HandleUserMessage(context.Background(), "I'm in Seattle. What do I need to do before leaving the house?")
	if err != nil {
		t.Fatalf("HandleUserMessage failed: %v", err)
	}
	if answer.Status != models.AnswerSuccess {
		t.Errorf("expected success, got %+v", answer)
	}

	types := historyTypes(t, s)
	want := []string{
		stores.TypeSystemPrompt,
		stores.TypeUserMessage,
		stores.TypeToolCall,
		stores.TypeToolResult,
		stores.TypeToolResult,
		stores.TypeAssistantMessage,
	}
	if fmt.Sprint(types) != fmt.Sprint(want) {
		t.Fatalf("expected history %v, got %v", want, types)
	}

	// Results line up with the request order and carry their call IDs.
	history, _ := s.History()
	if history[3].ToolCallID != "call-w" || history[4].ToolCallID != "call-a" {
		t.Errorf("tool results out of order: %s, %s", history[3].ToolCallID, history[4].ToolCallID)
	}

	parts, err := history[3].Parts()
	if err != nil || parts[0].FunctionResponse == nil {
		t.Fatalf("tool result parts mis-recorded: %v %v", parts, err)
	}
	if parts[0].FunctionResponse.Response["result"] != "52F, light rain" {
		t.Errorf("weather payload lost: %+v", parts[0].FunctionResponse.Response)
	}
}

func TestHandleUserMessageToolFailureDoesNotAbort(t *testing.T) {
	agent := &fakeAgent{
		outcomes: []models.Model_Outcome{
			toolCalls(models.Tool_Call{Tool_ID: "call-1", Tool_Name: "get-weather", Args: map[string]interface{}{}}),
			finalText("The weather service is down, check again later."),
		},
		executeFn: func(call models.Tool_Call) models.Tool_Result {
			return models.Tool_Result{
				Tool_ID:   call.Tool_ID,
				Tool_Name: call.Tool_Name,
				Success:   false,
				Error:     "tool server unavailable: connection refused",
			}
		},
	}
	s := newTestSession(agent, Config{})

	answer, err := s.HandleUserMessage(context.Background(), "weather?")
	if err != nil {
		t.Fatalf("HandleUserMessage failed: %v", err)
	}
	if answer.Status != models.AnswerSuccess {
		t.Errorf("tool failure should not fail the turn: %+v", answer)
	}

	history, _ := s.History()
	var resultRow *stores.Message
	for i := range history {
		if history[i].Type == stores.TypeToolResult {
			resultRow = &history[i]
		}
	}
	if resultRow == nil {
		t.Fatal("failed tool call left no result row")
	}
	parts, _ := resultRow.Parts()
	if parts[0].FunctionResponse.Success {
		t.Error("expected recorded failure")
	}
	if parts[0].FunctionResponse.Response["error"] == "" {
		t.Errorf("error detail lost: %+v", parts[0].FunctionResponse.Response)
	}
}

func TestHandleUserMessageRoundBound(t *testing.T) {
	// The model keeps asking for tools and never answers.
	agent := &fakeAgent{
		outcomes: []models.Model_Outcome{
			toolCalls(models.Tool_Call{Tool_ID: "call-1", Tool_Name: "get-weather", Args: map[string]interface{}{}}),
		},
	}
	s := newTestSession(agent, Config{MaxRounds: 3})

	answer, err := s.HandleUserMessage(context.Background(), "weather?")
	if err != nil {
		t.Fatalf("HandleUserMessage failed: %v", err)
	}
	if answer.Status != models.AnswerIncomplete {
		t.Errorf("expected incomplete answer, got %+v", answer)
	}
	if agent.completions() != 3 {
		t.Errorf("expected exactly 3 completions, got %d", agent.completions())
	}

	types := historyTypes(t, s)
	if types[len(types)-1] != stores.TypeSystemNote {
		t.Errorf("expected a trailing system note, got %v", types)
	}

	// The session remains usable afterwards.
	agent.mu.Lock()
	agent.outcomes = []models.Model_Outcome{finalText("recovered")}
	agent.completeCalls = 0
	agent.mu.Unlock()
	answer, err = s.HandleUserMessage(context.Background(), "try again")
	if err != nil || answer.Status != models.AnswerSuccess {
		t.Errorf("session unusable after round bound: %+v %v", answer, err)
	}
}

func TestHandleUserMessageBusy(t *testing.T) {
	agent := &fakeAgent{
		block:    make(chan struct{}),
		outcomes: []models.Model_Outcome{finalText("slow answer")},
	}
	s := newTestSession(agent, Config{})

	done := make(chan models.FinalAnswer, 1)
	go func() {
		answer, _ := s.HandleUserMessage(context.Background(), "first")
		done <- answer
	}()

	// Wait until the first turn is inside the model call.
	deadline := time.After(2 * time.Second)
	for {
		if agent.completions() > 0 || len(done) > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("first turn never reached the model")
		case <-time.After(5 * time.Millisecond):
		}
	}

	_, err := s.HandleUserMessage(context.Background(), "second")
	if models.CodeOf(err) != models.ErrSessionBusy {
		t.Errorf("expected session_busy, got %v", err)
	}

	close(agent.block)
	answer := <-done
	if answer.Status != models.AnswerSuccess {
		t.Errorf("first turn should complete normally: %+v", answer)
	}

	// The rejected message must not appear in history.
	history, _ := s.History()
	for _, m := range history {
		if m.Type == stores.TypeUserMessage && m.Text() == "second" {
			t.Error("rejected message leaked into history")
		}
	}
}

func TestHandleUserMessageRetriesTransientFailure(t *testing.T) {
	agent := &fakeAgent{
		errs:     []error{models.ModelRateLimited(fmt.Errorf("429"))},
		outcomes: []models.Model_Outcome{{}, finalText("after retry")},
	}
	s := newTestSession(agent, Config{RetryBackoff: time.Millisecond})

	answer, err := s.HandleUserMessage(context.Background(), "hi")
	if err != nil {
		t.Fatalf("HandleUserMessage failed: %v", err)
	}
	if answer.Status != models.AnswerSuccess || answer.Text != "after retry" {
		t.Errorf("expected retry to succeed, got %+v", answer)
	}
	if agent.completions() != 2 {
		t.Errorf("expected 2 attempts, got %d", agent.completions())
	}
}

func TestHandleUserMessageTerminalModelFailure(t *testing.T) {
	agent := &fakeAgent{
		errs: []error{models.ModelAuth(fmt.Errorf("bad key"))},
	}
	s := newTestSession(agent, Config{RetryBackoff: time.Millisecond})

	answer, err := s.HandleUserMessage(context.Background(), "hi")
	if err != nil {
		t.Fatalf("HandleUserMessage failed: %v", err)
	}
	if answer.Status != models.AnswerFailed {
		t.Errorf("expected failed answer, got %+v", answer)
	}
	if agent.completions() != 1 {
		t.Errorf("auth errors must not be retried, got %d attempts", agent.completions())
	}

	types := historyTypes(t, s)
	if types[len(types)-1] != stores.TypeSystemNote {
		t.Errorf("expected a diagnostic note, got %v", types)
	}
}

func TestHandleUserMessageCanceledContext(t *testing.T) {
	agent := &fakeAgent{outcomes: []models.Model_Outcome{finalText("never sent")}}
	s := newTestSession(agent, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	answer, err := s.HandleUserMessage(ctx, "hi")
	if err != nil {
		t.Fatalf("HandleUserMessage failed: %v", err)
	}
	if answer.Status != models.AnswerFailed {
		t.Errorf("expected failed answer, got %+v", answer)
	}

	types := historyTypes(t, s)
	if types[len(types)-1] != stores.TypeSystemNote {
		t.Errorf("expected an abandonment note, got %v", types)
	}
}

func TestParallelToolsKeepRequestOrder(t *testing.T) {
	// The first call finishes last; recorded order must still match the
	// request order.
	agent := &fakeAgent{
		outcomes: []models.Model_Outcome{
			toolCalls(
				models.Tool_Call{Tool_ID: "call-1", Tool_Name: "slow", Args: map[string]interface{}{}},
				models.Tool_Call{Tool_ID: "call-2", Tool_Name: "medium", Args: map[string]interface{}{}},
				models.Tool_Call{Tool_ID: "call-3", Tool_Name: "fast", Args: map[string]interface{}{}},
			),
			finalText("all done"),
		},
		executeFn: func(call models.Tool_Call) models.Tool_Result {
			delays := map[string]time.Duration{
				"slow":   30 * time.Millisecond,
				"medium": 15 * time.Millisecond,
				"fast":   0,
			}
			time.Sleep(delays[call.Tool_Name])
			return models.Tool_Result{
				Tool_ID:   call.Tool_ID,
				Tool_Name: call.Tool_Name,
				Success:   true,
				Payload:   map[string]interface{}{"result": call.Tool_Name},
			}
		},
	}
	s := newTestSession(agent, Config{ParallelTools: true})

	if _, err := s.HandleUserMessage(context.Background(), "go"); err != nil {
		t.Fatalf("HandleUserMessage failed: %v", err)
	}

	history, _ := s.History()
	var ids []string
	for _, m := range history {
		if m.Type == stores.TypeToolResult {
			ids = append(ids, m.ToolCallID)
		}
	}
	want := []string{"call-1", "call-2", "call-3"}
	if fmt.Sprint(ids) != fmt.Sprint(want) {
		t.Errorf("expected result order %v, got %v", want, ids)
	}
}

type countingSink struct {
	mu      sync.Mutex
	calls   int
	results int
}

func (c *countingSink) ToolCallRequested(models.Tool_Call) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
}

func (c *countingSink) ToolResultReady(models.Tool_Result) {
	c.mu.Lock()
	c.results++
	c.mu.Unlock()
}

func TestEventSinkSwapDuringTurn(t *testing.T) {
	// A WebSocket connection can attach or detach its sink while an HTTP
	// turn is mid-flight on another goroutine.
	agent := &fakeAgent{
		outcomes: []models.Model_Outcome{
			toolCalls(models.Tool_Call{Tool_ID: "call-1", Tool_Name: "get-weather", Args: map[string]interface{}{}}),
		},
		executeFn: func(call models.Tool_Call) models.Tool_Result {
			time.Sleep(time.Millisecond)
			return models.Tool_Result{Tool_ID: call.Tool_ID, Tool_Name: call.Tool_Name, Success: true}
		},
	}
	s := newTestSession(agent, Config{MaxRounds: 20})

	sink := &countingSink{}
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			s.SetEvents(sink)
			s.SetEvents(nil)
		}
	}()

	answer, err := s.HandleUserMessage(context.Background(), "weather?")
	close(stop)
	wg.Wait()

	if err != nil {
		t.Fatalf("HandleUserMessage failed: %v", err)
	}
	if answer.Status != models.AnswerIncomplete {
		t.Errorf("expected the round bound to end the turn, got %+v", answer)
	}
}

func TestEventSinkReceivesToolActivity(t *testing.T) {
	agent := &fakeAgent{
		outcomes: []models.Model_Outcome{
			toolCalls(models.Tool_Call{Tool_ID: "call-1", Tool_Name: "get-weather", Args: map[string]interface{}{}}),
			finalText("done"),
		},
	}
	s := newTestSession(agent, Config{})

	sink := &countingSink{}
	s.SetEvents(sink)

	if _, err := s.HandleUserMessage(context.Background(), "weather?"); err != nil {
		t.Fatalf("HandleUserMessage failed: %v", err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.calls != 1 || sink.results != 1 {
		t.Errorf("expected 1 call and 1 result event, got %d and %d", sink.calls, sink.results)
	}
}

func TestClearResetsConversation(t *testing.T) {
	agent := &fakeAgent{outcomes: []models.Model_Outcome{finalText("hello")}}
	s := newTestSession(agent, Config{ReseedSystemPrompt: true})

	if _, err := s.HandleUserMessage(context.Background(), "hi"); err != nil {
		t.Fatalf("HandleUserMessage failed: %v", err)
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	types := historyTypes(t, s)
	if len(types) != 1 || types[0] != stores.TypeSystemPrompt {
		t.Errorf("expected only the reseeded system prompt, got %v", types)
	}
	latest, ok := s.LatestAnswer()
	if !ok || latest.Text != ClearedNotice {
		t.Errorf("expected cleared notice after clear, got %+v ok=%v", latest, ok)
	}

	// Clearing again is a no-op, not an error.
	if err := s.Clear(); err != nil {
		t.Errorf("second clear failed: %v", err)
	}

	// The session accepts new turns after a clear.
	answer, err := s.HandleUserMessage(context.Background(), "again")
	if err != nil || answer.Status != models.AnswerSuccess {
		t.Errorf("session unusable after clear: %+v %v", answer, err)
	}
}

func TestDisplayHistoryHidesSystemRows(t *testing.T) {
	agent := &fakeAgent{outcomes: []models.Model_Outcome{finalText("hello")}}
	s := newTestSession(agent, Config{})

	if _, err := s.HandleUserMessage(context.Background(), "hi"); err != nil {
		t.Fatalf("HandleUserMessage failed: %v", err)
	}

	visible, err := s.DisplayHistory()
	if err != nil {
		t.Fatalf("DisplayHistory failed: %v", err)
	}
	for _, m := range visible {
		if m.Role == stores.RoleSystem {
			t.Errorf("system row leaked into display history: %+v", m)
		}
	}
	if len(visible) != 2 {
		t.Errorf("expected user and assistant rows, got %d", len(visible))
	}
}
