package mcptools

import (
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/sharoncxu/weather-agent/models"
)

// CatalogFromTools converts the tool server's advertised tools into the
// declarations handed to the model. Tools with no schema get an empty object
// schema so every provider accepts them.
func CatalogFromTools(tools []mcp.Tool) []models.FunctionDeclaration {
	catalog := make([]models.FunctionDeclaration, 0, len(tools))
	for _, tool := range tools {
		params := models.Parameters{
			Type:       tool.InputSchema.Type,
			Properties: tool.InputSchema.Properties,
			Required:   tool.InputSchema.Required,
		}
		if params.Type == "" {
			params.Type = "object"
		}
		if params.Properties == nil {
			params.Properties = map[string]interface{}{}
		}
		catalog = append(catalog, models.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  params,
		})
	}
	return catalog
}

// resultFromCallTool maps a tool server response onto a Tool_Result. A
// server-side tool error comes back as an unsuccessful result carrying the
// server's message.
func resultFromCallTool(call models.Tool_Call, res *mcp.CallToolResult) models.Tool_Result {
	text := flattenContent(res.Content)
	if res.IsError {
		if text == "" {
			text = "tool reported an error"
		}
		return models.Tool_Result{
			Tool_ID:   call.Tool_ID,
			Tool_Name: call.Tool_Name,
			Success:   false,
			Error:     text,
		}
	}
	return models.Tool_Result{
		Tool_ID:   call.Tool_ID,
		Tool_Name: call.Tool_Name,
		Success:   true,
		Payload:   map[string]interface{}{"result": text},
	}
}

// flattenContent joins the text segments of a tool response. Non-text
// content is ignored.
func flattenContent(content []mcp.Content) string {
	var segments []string
	for _, c := range content {
		if tc, ok := c.(mcp.TextContent); ok {
			segments = append(segments, tc.Text)
		}
	}
	return strings.Join(segments, "\n")
}
