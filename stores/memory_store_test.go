package stores

import (
	"testing"

	"github.com/sharoncxu/weather-agent/models"
)

func TestMemoryStoreSequencing(t *testing.T) {
	store := NewMemoryStore()

	parts := []models.Part{{Text: "first"}}
	if err := store.SaveMessage("conv-1", RoleUser, TypeUserMessage, parts, ""); err != nil {
		t.Fatalf("SaveMessage failed: %v", err)
	}
	parts = []models.Part{{Text: "second"}}
	if err := store.SaveMessage("conv-1", RoleAssistant, TypeAssistantMessage, parts, ""); err != nil {
		t.Fatalf("SaveMessage failed: %v", err)
	}

	msgs, err := store.FetchHistory("conv-1")
	if err != nil {
		t.Fatalf("FetchHistory failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	for i, m := range msgs {
		if m.Sequence != i+1 {
			t.Errorf("message %d: expected sequence %d, got %d", i, i+1, m.Sequence)
		}
	}
	if msgs[0].Text() != "first" || msgs[1].Text() != "second" {
		t.Errorf("messages out of order: %q, %q", msgs[0].Text(), msgs[1].Text())
	}
}

func TestMemoryStoreIsolation(t *testing.T) {
	store := NewMemoryStore()

	store.SaveMessage("conv-a", RoleUser, TypeUserMessage, []models.Part{{Text: "a"}}, "")
	store.SaveMessage("conv-b", RoleUser, TypeUserMessage, []models.Part{{Text: "b"}}, "")

	msgs, _ := store.FetchHistory("conv-a")
	if len(msgs) != 1 || msgs[0].Text() != "a" {
		t.Errorf("conversation isolation broken: %+v", msgs)
	}
}

func TestMemoryStoreClearHistory(t *testing.T) {
	store := NewMemoryStore()

	store.SaveMessage("conv-1", RoleUser, TypeUserMessage, []models.Part{{Text: "hello"}}, "")
	if err := store.ClearHistory("conv-1"); err != nil {
		t.Fatalf("ClearHistory failed: %v", err)
	}

	msgs, _ := store.FetchHistory("conv-1")
	if len(msgs) != 0 {
		t.Errorf("expected empty history after clear, got %d messages", len(msgs))
	}

	// Clearing again must be a no-op, not an error.
	if err := store.ClearHistory("conv-1"); err != nil {
		t.Errorf("clearing an empty conversation failed: %v", err)
	}

	// Sequence numbering restarts after a clear.
	store.SaveMessage("conv-1", RoleUser, TypeUserMessage, []models.Part{{Text: "again"}}, "")
	msgs, _ = store.FetchHistory("conv-1")
	if len(msgs) != 1 || msgs[0].Sequence != 1 {
		t.Errorf("expected sequence to restart at 1, got %+v", msgs)
	}
}

func TestMemoryStoreEmptyParts(t *testing.T) {
	store := NewMemoryStore()

	if err := store.SaveMessage("conv-1", RoleSystem, TypeSystemNote, nil, ""); err != nil {
		t.Fatalf("SaveMessage with nil parts failed: %v", err)
	}

	msgs, _ := store.FetchHistory("conv-1")
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].PartsJSON != "{}" {
		t.Errorf("expected empty parts placeholder, got %q", msgs[0].PartsJSON)
	}
	parts, err := msgs[0].Parts()
	if err != nil {
		t.Fatalf("Parts failed on placeholder: %v", err)
	}
	if len(parts) != 0 {
		t.Errorf("expected no decoded parts, got %d", len(parts))
	}
}

func TestMemoryStoreToolCallID(t *testing.T) {
	store := NewMemoryStore()

	parts := []models.Part{{FunctionResponse: &models.FunctionResponse{
		ID:       "call-1",
		Name:     "get-weather",
		Success:  true,
		Response: map[string]interface{}{"result": "sunny"},
	}}}
	if err := store.SaveMessage("conv-1", RoleTool, TypeToolResult, parts, "call-1"); err != nil {
		t.Fatalf("SaveMessage failed: %v", err)
	}

	msgs, _ := store.FetchHistory("conv-1")
	if msgs[0].ToolCallID != "call-1" {
		t.Errorf("expected tool call ID to round-trip, got %q", msgs[0].ToolCallID)
	}
	decoded, err := msgs[0].Parts()
	if err != nil {
		t.Fatalf("Parts failed: %v", err)
	}
	if decoded[0].FunctionResponse == nil || decoded[0].FunctionResponse.Name != "get-weather" {
		t.Errorf("function response did not round-trip: %+v", decoded[0])
	}
}
