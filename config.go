package weatheragent

import (
	"time"

	"github.com/sharoncxu/weather-agent/stores"
)

// DefaultSystemPrompt steers the assistant toward weather-aware advice for
// leaving the house.
const DefaultSystemPrompt = "You are in charge of helping the user get ready to leave the house. " +
	"Use the get-weather tool to check the current weather for the current city. " +
	"Check the air quality index to see if its suitable to go outside today. " +
	"Then make recommendations on what the user should do before going outside. " +
	"Remove the emojis. Display the result in plain text instead of Markdown."

// ChatConfig holds configuration for creating chat sessions
type ChatConfig struct {
	MaxRounds          int
	SystemPrompt       string
	ReseedSystemPrompt bool
	ParallelTools      bool
	RetryBackoff       time.Duration
	Store              *stores.StoreConfig
}

// NewChatConfig creates a configuration with defaults: eight tool rounds per
// turn, the default system prompt, and an in-memory store.
func NewChatConfig() *ChatConfig {
	return &ChatConfig{
		MaxRounds:          8,
		SystemPrompt:       DefaultSystemPrompt,
		ReseedSystemPrompt: true,
		RetryBackoff:       500 * time.Millisecond,
		Store:              stores.NewStoreConfig("memory", ""),
	}
}

// WithMaxRounds bounds the number of model completions per user message
func (c *ChatConfig) WithMaxRounds(n int) *ChatConfig {
	c.MaxRounds = n
	return c
}

// WithSystemPrompt replaces the default system prompt
func (c *ChatConfig) WithSystemPrompt(prompt string) *ChatConfig {
	c.SystemPrompt = prompt
	return c
}

// WithReseedSystemPrompt controls whether Clear re-seeds the system prompt
func (c *ChatConfig) WithReseedSystemPrompt(reseed bool) *ChatConfig {
	c.ReseedSystemPrompt = reseed
	return c
}

// WithParallelTools runs a round's tool calls concurrently
func (c *ChatConfig) WithParallelTools(parallel bool) *ChatConfig {
	c.ParallelTools = parallel
	return c
}

// WithRetryBackoff sets the pause before retrying a transient model failure
func (c *ChatConfig) WithRetryBackoff(d time.Duration) *ChatConfig {
	c.RetryBackoff = d
	return c
}

// WithStore selects the backing message store
func (c *ChatConfig) WithStore(store *stores.StoreConfig) *ChatConfig {
	c.Store = store
	return c
}
