package models

// FunctionDeclaration describes one tool to the model: name, natural-language
// description, and a JSON-schema style parameter object.
type FunctionDeclaration struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Parameters  Parameters `json:"parameters"`
}

// Parameters is the schema of a tool's arguments. Properties holds raw schema
// fragments so provider adapters can translate them without loss.
type Parameters struct {
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties"`
	Required   []string               `json:"required"`
}
