package models

// OutcomeKind tags what the model produced on one completion round.
type OutcomeKind int

const (
	// OutcomeFinalText means the model answered the user directly.
	OutcomeFinalText OutcomeKind = iota
	// OutcomeToolCalls means the model asked for one or more tool invocations
	// before it can answer.
	OutcomeToolCalls
)

// Model_Outcome is the result of a single completion call. Kind says which of
// the remaining fields is meaningful: Text for OutcomeFinalText, ToolCalls
// (in the model's requested order) for OutcomeToolCalls.
type Model_Outcome struct {
	Kind      OutcomeKind
	Text      string
	ToolCalls []Tool_Call
}

// Tool_Call is one invocation the model requested.
type Tool_Call struct {
	Tool_ID   string                 `json:"tool_id"`
	Tool_Name string                 `json:"tool_name"`
	Args      map[string]interface{} `json:"args"`
}

// Tool_Result is the outcome of executing one Tool_Call. Tool_ID always
// matches the originating call so the model can correlate them.
type Tool_Result struct {
	Tool_ID   string                 `json:"tool_id"`
	Tool_Name string                 `json:"tool_name"`
	Success   bool                   `json:"success"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// ResponseMap renders the result as the payload map recorded in history and
// sent back to the model.
func (r Tool_Result) ResponseMap() map[string]interface{} {
	if !r.Success {
		return map[string]interface{}{"error": r.Error}
	}
	if r.Payload == nil {
		return map[string]interface{}{}
	}
	return r.Payload
}

// AnswerStatus classifies how a turn ended.
type AnswerStatus string

const (
	AnswerSuccess    AnswerStatus = "success"
	AnswerIncomplete AnswerStatus = "incomplete"
	AnswerFailed     AnswerStatus = "failed"
)

// FinalAnswer is what a turn hands back to the caller: the assistant text to
// display and how the turn concluded.
type FinalAnswer struct {
	Text   string       `json:"text"`
	Status AnswerStatus `json:"status"`
}
