package stores

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
)

// MemoryStore implements MessageStore entirely in process memory. It is the
// default store: nothing survives a restart.
type MemoryStore struct {
	mu       sync.RWMutex
	messages map[string][]Message
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages: make(map[string][]Message),
	}
}

// Connect is a no-op for the in-memory store.
func (s *MemoryStore) Connect() error {
	return nil
}

// Close discards all stored conversations.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = make(map[string][]Message)
	return nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping() error {
	return nil
}

// SaveMessage appends a message to the conversation's history.
func (s *MemoryStore) SaveMessage(conversationID, role, messageType string, parts interface{}, toolCallID string) error {
	partsJSONBytes, err := json.Marshal(parts)
	if err != nil {
		return fmt.Errorf("failed to marshal parts: %w", err)
	}
	partsJSONStr := string(partsJSONBytes)

	if parts == nil || partsJSONStr == "null" || partsJSONStr == "[]" {
		log.Printf("Warning: Saving message with empty/null parts for ConvID: %s, Role: %s, Type: %s", conversationID, role, messageType)
		partsJSONStr = "{}"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msg := Message{
		ConversationID: conversationID,
		Sequence:       len(s.messages[conversationID]) + 1,
		Role:           role,
		Type:           messageType,
		PartsJSON:      partsJSONStr,
		ToolCallID:     toolCallID,
	}
	s.messages[conversationID] = append(s.messages[conversationID], msg)
	return nil
}

// FetchHistory returns the conversation's messages in sequence order. The
// returned slice is a copy.
func (s *MemoryStore) FetchHistory(conversationID string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.messages[conversationID]
	msgs := make([]Message, len(stored))
	copy(msgs, stored)
	return msgs, nil
}

// ClearHistory removes all messages for a conversation. Clearing an unknown
// or already empty conversation is not an error.
func (s *MemoryStore) ClearHistory(conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.messages, conversationID)
	return nil
}
