package gemini

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/sharoncxu/weather-agent/models"
	"github.com/sharoncxu/weather-agent/stores"
)

// Gemini_Model is a chat completion gateway for the Gemini API.
type Gemini_Model struct {
	Model  string
	APIKey string

	client    *genai.Client
	once      sync.Once
	clientErr error
}

// NewGeminiModel creates a gateway for the given model, reading the API key
// from GEMINI_API_KEY.
func NewGeminiModel(model string) *Gemini_Model {
	return &Gemini_Model{
		Model:  model,
		APIKey: os.Getenv("GEMINI_API_KEY"),
	}
}

// WithAPIKey overrides the environment-provided key
func (m *Gemini_Model) WithAPIKey(key string) *Gemini_Model {
	m.APIKey = key
	return m
}

func (m *Gemini_Model) ensureClient(ctx context.Context) error {
	m.once.Do(func() {
		m.client, m.clientErr = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  m.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
	})
	return m.clientErr
}

// Complete runs one generation over the stored history.
func (m *Gemini_Model) Complete(ctx context.Context, history []stores.Message, tools []models.FunctionDeclaration) (models.Model_Outcome, error) {
	if err := m.ensureClient(ctx); err != nil {
		return models.Model_Outcome{}, models.ModelAuth(err)
	}

	contents, systemPrompt, err := buildContents(history)
	if err != nil {
		return models.Model_Outcome{}, models.ModelProtocol("could not encode history", err)
	}

	config := &genai.GenerateContentConfig{}
	if systemPrompt != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemPrompt}},
		}
	}
	if decls := declarationsFromCatalog(tools); len(decls) > 0 {
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	resp, err := m.client.Models.GenerateContent(ctx, m.Model, contents, config)
	if err != nil {
		return models.Model_Outcome{}, classifyError(err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return models.Model_Outcome{}, models.ModelProtocol("model returned no candidates", nil)
	}

	return outcomeFromContent(resp.Candidates[0].Content)
}

// buildContents renders stored history into Gemini contents. The system
// prompt becomes the system instruction; system notes stay local. Tool
// results go back as user-role function responses per the Gemini turn model.
func buildContents(history []stores.Message) ([]*genai.Content, string, error) {
	var (
		contents     []*genai.Content
		systemPrompt string
	)

	for _, msg := range history {
		switch msg.Type {
		case stores.TypeSystemNote:
			continue

		case stores.TypeSystemPrompt:
			systemPrompt = msg.Text()

		case stores.TypeUserMessage:
			contents = append(contents, &genai.Content{
				Role:  genai.RoleUser,
				Parts: []*genai.Part{{Text: msg.Text()}},
			})

		case stores.TypeAssistantMessage:
			contents = append(contents, &genai.Content{
				Role:  genai.RoleModel,
				Parts: []*genai.Part{{Text: msg.Text()}},
			})

		case stores.TypeToolCall:
			parts, err := msg.Parts()
			if err != nil {
				return nil, "", fmt.Errorf("undecodable tool call row %d: %w", msg.Sequence, err)
			}
			var callParts []*genai.Part
			for _, part := range parts {
				if part.FunctionCall == nil {
					continue
				}
				callParts = append(callParts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   part.FunctionCall.ID,
					Name: part.FunctionCall.Name,
					Args: part.FunctionCall.Args,
				}})
			}
			contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: callParts})

		case stores.TypeToolResult:
			parts, err := msg.Parts()
			if err != nil {
				return nil, "", fmt.Errorf("undecodable tool result row %d: %w", msg.Sequence, err)
			}
			var respParts []*genai.Part
			for _, part := range parts {
				if part.FunctionResponse == nil {
					continue
				}
				respParts = append(respParts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
					ID:       part.FunctionResponse.ID,
					Name:     part.FunctionResponse.Name,
					Response: part.FunctionResponse.Response,
				}})
			}
			contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: respParts})
		}
	}

	return contents, systemPrompt, nil
}

func declarationsFromCatalog(decls []models.FunctionDeclaration) []*genai.FunctionDeclaration {
	out := make([]*genai.FunctionDeclaration, 0, len(decls))
	for _, decl := range decls {
		out = append(out, &genai.FunctionDeclaration{
			Name:        decl.Name,
			Description: decl.Description,
			Parameters:  schemaFromParameters(decl.Parameters),
		})
	}
	return out
}

func typeFromString(t string) genai.Type {
	switch t {
	case "object":
		return genai.TypeObject
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	default:
		return genai.TypeString
	}
}

// schemaFromParameters converts a raw JSON-schema parameter block into the
// SDK's typed schema.
func schemaFromParameters(params models.Parameters) *genai.Schema {
	schema := &genai.Schema{
		Type:     typeFromString(params.Type),
		Required: params.Required,
	}
	if len(params.Properties) > 0 {
		schema.Properties = make(map[string]*genai.Schema, len(params.Properties))
		for name, raw := range params.Properties {
			if fragment, ok := raw.(map[string]interface{}); ok {
				schema.Properties[name] = schemaFromMap(fragment)
			} else {
				schema.Properties[name] = &genai.Schema{Type: genai.TypeString}
			}
		}
	}
	return schema
}

func schemaFromMap(fragment map[string]interface{}) *genai.Schema {
	schema := &genai.Schema{Type: genai.TypeString}

	if t, ok := fragment["type"].(string); ok {
		schema.Type = typeFromString(t)
	}
	if desc, ok := fragment["description"].(string); ok {
		schema.Description = desc
	}
	if props, ok := fragment["properties"].(map[string]interface{}); ok {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			if sub, ok := raw.(map[string]interface{}); ok {
				schema.Properties[name] = schemaFromMap(sub)
			}
		}
	}
	if items, ok := fragment["items"].(map[string]interface{}); ok {
		schema.Items = schemaFromMap(items)
	}
	if required, ok := fragment["required"].([]interface{}); ok {
		for _, r := range required {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	if enum, ok := fragment["enum"].([]interface{}); ok {
		for _, e := range enum {
			if s, ok := e.(string); ok {
				schema.Enum = append(schema.Enum, s)
			}
		}
	}

	return schema
}

// outcomeFromContent classifies the model's reply. Function call parts win
// over text parts when both appear.
func outcomeFromContent(content *genai.Content) (models.Model_Outcome, error) {
	var (
		calls []models.Tool_Call
		text  strings.Builder
		seen  = make(map[string]bool)
	)

	for _, part := range content.Parts {
		if part.FunctionCall != nil {
			id := part.FunctionCall.ID
			if id == "" || seen[id] {
				id = uuid.NewString()
			}
			seen[id] = true

			args := part.FunctionCall.Args
			if args == nil {
				args = map[string]interface{}{}
			}
			calls = append(calls, models.Tool_Call{
				Tool_ID:   id,
				Tool_Name: part.FunctionCall.Name,
				Args:      args,
			})
			continue
		}
		if part.Text != "" {
			text.WriteString(part.Text)
		}
	}

	if len(calls) > 0 {
		return models.Model_Outcome{Kind: models.OutcomeToolCalls, ToolCalls: calls}, nil
	}

	trimmed := strings.TrimSpace(text.String())
	if trimmed == "" {
		return models.Model_Outcome{}, models.ModelProtocol("model returned neither text nor tool calls", nil)
	}
	return models.Model_Outcome{Kind: models.OutcomeFinalText, Text: trimmed}, nil
}

// classifyError maps provider errors onto the shared taxonomy.
func classifyError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
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
