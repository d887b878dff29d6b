package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	goopenai "github.com/sashabaranov/go-openai"

	"github.com/sharoncxu/weather-agent/models"
	"github.com/sharoncxu/weather-agent/stores"
)

// OpenAI_Model is a chat completion gateway for OpenAI and compatible
// endpoints (set BaseURL for Azure-style or local proxies).
type OpenAI_Model struct {
	Model   string
	APIKey  string
	BaseURL string

	client *goopenai.Client
	once   sync.Once
}

// NewOpenAIModel creates a gateway for the given model, reading the API key
// from OPENAI_API_KEY.
func NewOpenAIModel(model string) *OpenAI_Model {
	return &OpenAI_Model{
		Model:  model,
		APIKey: os.Getenv("OPENAI_API_KEY"),
	}
}

// WithAPIKey overrides the environment-provided key
func (m *OpenAI_Model) WithAPIKey(key string) *OpenAI_Model {
	m.APIKey = key
	return m
}

// WithBaseURL points the client at a compatible non-OpenAI endpoint
func (m *OpenAI_Model) WithBaseURL(url string) *OpenAI_Model {
	m.BaseURL = url
	return m
}

func (m *OpenAI_Model) ensureClient() {
	m.once.Do(func() {
		config := goopenai.DefaultConfig(m.APIKey)
		if m.BaseURL != "" {
			config.BaseURL = m.BaseURL
		}
		m.client = goopenai.NewClientWithConfig(config)
	})
}

// Complete runs one chat completion over the stored history.
func (m *OpenAI_Model) Complete(ctx context.Context, history []stores.Message, tools []models.FunctionDeclaration) (models.Model_Outcome, error) {
	m.ensureClient()

	messages, err := buildMessages(history)
	if err != nil {
		return models.Model_Outcome{}, models.ModelProtocol("could not encode history", err)
	}

	req := goopenai.ChatCompletionRequest{
		Model:    m.Model,
		Messages: messages,
		Tools:    toolsFromDeclarations(tools),
	}

	resp, err := m.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return models.Model_Outcome{}, classifyError(err)
	}
	if len(resp.Choices) == 0 {
		return models.Model_Outcome{}, models.ModelProtocol("model returned no choices", nil)
	}

	return outcomeFromMessage(resp.Choices[0].Message)
}

// buildMessages renders stored history into the OpenAI wire format. System
// notes are local diagnostics and are not sent to the model.
func buildMessages(history []stores.Message) ([]goopenai.ChatCompletionMessage, error) {
	messages := make([]goopenai.ChatCompletionMessage, 0, len(history))

	for _, msg := range history {
		switch msg.Type {
		case stores.TypeSystemNote:
			continue

		case stores.TypeSystemPrompt:
			messages = append(messages, goopenai.ChatCompletionMessage{
				Role:    goopenai.ChatMessageRoleSystem,
				Content: msg.Text(),
			})

		case stores.TypeUserMessage:
			messages = append(messages, goopenai.ChatCompletionMessage{
				Role:    goopenai.ChatMessageRoleUser,
				Content: msg.Text(),
			})

		case stores.TypeAssistantMessage:
			messages = append(messages, goopenai.ChatCompletionMessage{
				Role:    goopenai.ChatMessageRoleAssistant,
				Content: msg.Text(),
			})

		case stores.TypeToolCall:
			parts, err := msg.Parts()
			if err != nil {
				return nil, fmt.Errorf("undecodable tool call row %d: %w", msg.Sequence, err)
			}
			var toolCalls []goopenai.ToolCall
			for _, part := range parts {
				if part.FunctionCall == nil {
					continue
				}
				argsJSON, err := json.Marshal(part.FunctionCall.Args)
				if err != nil {
					return nil, fmt.Errorf("unencodable args for %q: %w", part.FunctionCall.Name, err)
				}
				toolCalls = append(toolCalls, goopenai.ToolCall{
					ID:   part.FunctionCall.ID,
					Type: goopenai.ToolTypeFunction,
					Function: goopenai.FunctionCall{
						Name:      part.FunctionCall.Name,
						Arguments: string(argsJSON),
					},
				})
			}
			messages = append(messages, goopenai.ChatCompletionMessage{
				Role:      goopenai.ChatMessageRoleAssistant,
				ToolCalls: toolCalls,
			})

		case stores.TypeToolResult:
			parts, err := msg.Parts()
			if err != nil {
				return nil, fmt.Errorf("undecodable tool result row %d: %w", msg.Sequence, err)
			}
			for _, part := range parts {
				if part.FunctionResponse == nil {
					continue
				}
				respJSON, err := json.Marshal(part.FunctionResponse.Response)
				if err != nil {
					return nil, fmt.Errorf("unencodable response for %q: %w", part.FunctionResponse.Name, err)
				}
				messages = append(messages, goopenai.ChatCompletionMessage{
					Role:       goopenai.ChatMessageRoleTool,
					ToolCallID: part.FunctionResponse.ID,
					Content:    string(respJSON),
				})
			}
		}
	}

	return messages, nil
}

func toolsFromDeclarations(decls []models.FunctionDeclaration) []goopenai.Tool {
	if len(decls) == 0 {
		return nil
	}
	tools := make([]goopenai.Tool, 0, len(decls))
	for _, decl := range decls {
		tools = append(tools, goopenai.Tool{
			Type: goopenai.ToolTypeFunction,
			Function: &goopenai.FunctionDefinition{
				Name:        decl.Name,
				Description: decl.Description,
				Parameters:  decl.Parameters,
			},
		})
	}
	return tools
}

// outcomeFromMessage classifies the model's reply. Malformed argument JSON
// degrades to empty args rather than failing the round; duplicate and
// missing call IDs are repaired so results can always be correlated.
func outcomeFromMessage(msg goopenai.ChatCompletionMessage) (models.Model_Outcome, error) {
	if len(msg.ToolCalls) > 0 {
		seen := make(map[string]bool)
		calls := make([]models.Tool_Call, 0, len(msg.ToolCalls))
		for _, tc := range msg.ToolCalls {
			id := tc.ID
			if id == "" || seen[id] {
				id = uuid.NewString()
			}
			seen[id] = true

			args := map[string]interface{}{}
			if tc.Function.Arguments != "" {
				if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
					args = map[string]interface{}{}
				}
			}
			calls = append(calls, models.Tool_Call{
				Tool_ID:   id,
				Tool_Name: tc.Function.Name,
				Args:      args,
			})
		}
		return models.Model_Outcome{Kind: models.OutcomeToolCalls, ToolCalls: calls}, nil
	}

	text := strings.TrimSpace(msg.Content)
	if text == "" {
		return models.Model_Outcome{}, models.ModelProtocol("model returned neither text nor tool calls", nil)
	}
	return models.Model_Outcome{Kind: models.OutcomeFinalText, Text: text}, nil
}

// classifyError maps provider errors onto the shared taxonomy. Unrecognized
// errors pass through and are treated as transient by the caller.
func classifyError(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 401, 403:
			return models.ModelAuth(err)
		case 429:
			return models.ModelRateLimited(err)
		case 400:
			return models.ModelProtocol("model rejected the request", err)
		}
	}
	return fmt.Errorf("model request failed: %w", err)
}
