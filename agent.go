package weatheragent

import (
	"context"

	"github.com/sharoncxu/weather-agent/models"
	"github.com/sharoncxu/weather-agent/stores"
)

// Gateway abstracts a chat completion provider. Implementations translate
// stored history and tool declarations into the provider's wire format and
// classify failures into the shared error taxonomy.
type Gateway interface {
	Complete(ctx context.Context, history []stores.Message, tools []models.FunctionDeclaration) (models.Model_Outcome, error)
}

// ToolInvoker abstracts the tool server. Catalog is fixed for the life of the
// connection; Invoke reports failures through the result, not an error.
type ToolInvoker interface {
	Catalog() []models.FunctionDeclaration
	Invoke(ctx context.Context, call models.Tool_Call) models.Tool_Result
}

// Agent binds a model gateway to a tool invoker. It satisfies
// sessions.AgentInterface.
type Agent struct {
	Gateway Gateway
	Invoker ToolInvoker
}

// NewAgent creates an agent. Invoker may be nil for a tool-less agent.
func NewAgent(gateway Gateway, invoker ToolInvoker) *Agent {
	return &Agent{Gateway: gateway, Invoker: invoker}
}

// Tools returns the declarations advertised to the model.
func (a *Agent) Tools() []models.FunctionDeclaration {
	if a.Invoker == nil {
		return nil
	}
	return a.Invoker.Catalog()
}

// Complete runs one model completion over the conversation history.
func (a *Agent) Complete(ctx context.Context, history []stores.Message) (models.Model_Outcome, error) {
	return a.Gateway.Complete(ctx, history, a.Tools())
}

// ExecuteTool runs one tool call requested by the model.
func (a *Agent) ExecuteTool(ctx context.Context, call models.Tool_Call) models.Tool_Result {
	if a.Invoker == nil {
		return models.Tool_Result{
			Tool_ID:   call.Tool_ID,
			Tool_Name: call.Tool_Name,
			Success:   false,
			Error:     "no tool server configured",
		}
	}
	return a.Invoker.Invoke(ctx, call)
}
