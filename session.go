package weatheragent

import (
	"fmt"

	"github.com/sharoncxu/weather-agent/sessions"
	"github.com/sharoncxu/weather-agent/stores"
)

// NewChatSession creates a chat session for the given conversation, opening
// the store named by the configuration.
func NewChatSession(conversationID string, agent *Agent, config *ChatConfig) (*sessions.ChatSession, error) {
	if config == nil {
		config = NewChatConfig()
	}

	store, err := stores.NewStore(config.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open message store: %w", err)
	}

	return NewChatSessionWithStore(conversationID, agent, store, config), nil
}

// NewChatSessionWithStore creates a chat session on an already open store.
func NewChatSessionWithStore(conversationID string, agent *Agent, store stores.MessageStore, config *ChatConfig) *sessions.ChatSession {
	if config == nil {
		config = NewChatConfig()
	}

	return sessions.NewChatSession(conversationID, agent, store, sessions.Config{
		MaxRounds:          config.MaxRounds,
		SystemPrompt:       config.SystemPrompt,
		ReseedSystemPrompt: config.ReseedSystemPrompt,
		ParallelTools:      config.ParallelTools,
		RetryBackoff:       config.RetryBackoff,
	})
}
