package stores

import (
	"encoding/json"

	"gorm.io/gorm"

	"github.com/sharoncxu/weather-agent/models"
)

// Roles a stored message can carry.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message types. A conversation turn is one row; tool calls and tool results
// get a row each so ordering survives round trips through the store.
const (
	TypeSystemPrompt     = "system_prompt"
	TypeUserMessage      = "user_message"
	TypeAssistantMessage = "assistant_message"
	TypeToolCall         = "tool_call"
	TypeToolResult       = "tool_result"
	TypeSystemNote       = "system_note"
)

// Message represents any chat message or tool interaction within a
// conversation turn.
type Message struct {
	gorm.Model
	ConversationID string `gorm:"index;not null"`
	Sequence       int    `gorm:"not null"`
	Role           string `gorm:"not null"` // "system", "user", "assistant", "tool"
	Type           string `gorm:"not null"` // see Type* constants
	// ToolCallID links a tool_result row back to the tool_call that produced it.
	ToolCallID string `gorm:"index" json:"tool_call_id,omitempty"`
	// PartsJSON stores the JSON marshaled array of content parts for this turn.
	PartsJSON string `gorm:"type:json"`
}

// Parts decodes the stored content parts. A "{}" placeholder row decodes to
// an empty list.
func (m Message) Parts() ([]models.Part, error) {
	if m.PartsJSON == "" || m.PartsJSON == "{}" {
		return nil, nil
	}
	var parts []models.Part
	if err := json.Unmarshal([]byte(m.PartsJSON), &parts); err != nil {
		return nil, err
	}
	return parts, nil
}

// Text returns the concatenated plain-text content of the message, ignoring
// undecodable rows.
func (m Message) Text() string {
	parts, err := m.Parts()
	if err != nil {
		return ""
	}
	return models.TextOfParts(parts)
}

// MessageStore interface for abstracting database operations
type MessageStore interface {
	// Message operations
	SaveMessage(conversationID, role, messageType string, parts interface{}, toolCallID string) error
	FetchHistory(conversationID string) ([]Message, error)
	ClearHistory(conversationID string) error

	// Connection management
	Connect() error
	Close() error

	// Health check
	Ping() error
}

// StoreConfig holds configuration for message stores
type StoreConfig struct {
	Type       string            `json:"type"`       // "memory", "sqlite", "postgres"
	Connection string            `json:"connection"` // connection string
	Options    map[string]string `json:"options"`    // additional options
}

// NewStoreConfig creates a new store configuration
func NewStoreConfig(storeType, connection string) *StoreConfig {
	return &StoreConfig{
		Type:       storeType,
		Connection: connection,
		Options:    make(map[string]string),
	}
}

// WithOption adds an option to the store configuration
func (c *StoreConfig) WithOption(key, value string) *StoreConfig {
	c.Options[key] = value
	return c
}
