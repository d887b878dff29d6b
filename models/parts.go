package models

// Part is one content element of a conversation turn. A turn's content is an
// ordered list of parts: plain text, a tool-call request recorded from the
// model, or a tool result fed back to it. Exactly one field is set per part.
type Part struct {
	Text             string            `json:"text,omitempty"`
	FunctionCall     *FunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *FunctionResponse `json:"functionResponse,omitempty"`
}

type FunctionCall struct {
	ID   string                 `json:"id,omitempty"` // Unique ID for this specific call instance
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

// FunctionResponse carries a tool's result back into history. Success is false
// when the tool server was unreachable, timed out, or reported an error; the
// model still gets a response either way.
type FunctionResponse struct {
	ID       string                 `json:"id,omitempty"`
	Name     string                 `json:"name"`
	Success  bool                   `json:"success"`
	Response map[string]interface{} `json:"response"`
}

// TextOfParts concatenates the plain-text segments of a part list.
func TextOfParts(parts []Part) string {
	text := ""
	for _, p := range parts {
		text += p.Text
	}
	return text
}
