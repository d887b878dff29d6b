package mcptools

import (
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/sharoncxu/weather-agent/models"
)

func TestCatalogFromTools(t *testing.T) {
	tools := []mcp.Tool{
		{
			Name:        "get-weather",
			Description: "Get current weather for a city",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"city": map[string]interface{}{"type": "string"},
				},
				Required: []string{"city"},
			},
		},
		{
			Name:        "get-air-quality",
			Description: "Get air quality index for a city",
		},
	}

	catalog := CatalogFromTools(tools)
	if len(catalog) != 2 {
		t.Fatalf("expected 2 declarations, got %d", len(catalog))
	}

	weather := catalog[0]
	if weather.Name != "get-weather" {
		t.Errorf("expected get-weather, got %q", weather.Name)
	}
	if weather.Parameters.Type != "object" {
		t.Errorf("expected object schema, got %q", weather.Parameters.Type)
	}
	if len(weather.Parameters.Required) != 1 || weather.Parameters.Required[0] != "city" {
		t.Errorf("required fields did not carry over: %v", weather.Parameters.Required)
	}

	// A tool without a schema still gets a valid empty object schema.
	air := catalog[1]
	if air.Parameters.Type != "object" {
		t.Errorf("expected default object schema, got %q", air.Parameters.Type)
	}
	if air.Parameters.Properties == nil {
		t.Error("expected non-nil properties map")
	}
}

func TestResultFromCallTool(t *testing.T) {
	call := models.Tool_Call{Tool_ID: "call-1", Tool_Name: "get-weather"}

	ok := resultFromCallTool(call, &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: "Sunny, 72F"},
		},
	})
	if !ok.Success {
		t.Error("expected success")
	}
	if ok.Tool_ID != "call-1" || ok.Tool_Name != "get-weather" {
		t.Errorf("call identity did not carry over: %+v", ok)
	}
	if ok.Payload["result"] != "Sunny, 72F" {
		t.Errorf("unexpected payload: %v", ok.Payload)
	}

	failed := resultFromCallTool(call, &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: "unknown city"},
		},
	})
	if failed.Success {
		t.Error("expected failure")
	}
	if failed.Error != "unknown city" {
		t.Errorf("expected server message, got %q", failed.Error)
	}

	empty := resultFromCallTool(call, &mcp.CallToolResult{IsError: true})
	if empty.Error == "" {
		t.Error("expected a placeholder error message")
	}
}

func TestFlattenContentJoinsTextSegments(t *testing.T) {
	content := []mcp.Content{
		mcp.TextContent{Type: "text", Text: "line one"},
		mcp.TextContent{Type: "text", Text: "line two"},
	}
	got := flattenContent(content)
	if got != "line one\nline two" {
		t.Errorf("unexpected flattened text: %q", got)
	}
}
