package schemas

// ActionKind identifies which handler executes a decision.
type ActionKind string

const (
	ActionClick          ActionKind = "click"
	ActionInputText      ActionKind = "input_text"
	ActionSelectOption   ActionKind = "select_option"
	ActionHover          ActionKind = "hover"
	ActionUploadFile     ActionKind = "upload_file"
	ActionPointerClick   ActionKind = "pointer_click"
	ActionPointerMove    ActionKind = "pointer_move"
	ActionDrag           ActionKind = "drag"
	ActionKeyPress       ActionKind = "key_press"
	ActionTypeText       ActionKind = "type_text"
	ActionScroll         ActionKind = "scroll"
	ActionNavigate       ActionKind = "navigate"
	ActionReload         ActionKind = "reload"
	ActionHistoryBack    ActionKind = "history_back"
	ActionHistoryForward ActionKind = "history_forward"
	ActionWait           ActionKind = "wait"
	ActionExtract        ActionKind = "extract"
	ActionComplete       ActionKind = "complete"
	ActionTerminate      ActionKind = "terminate"
)

// RawDecision is the loosely-structured decision a provider returns before
// validation. Field names match the JSON shape the model is prompted to emit.
type RawDecision struct {
	Kind         string                 `json:"action"`
	Reasoning    string                 `json:"reasoning,omitempty"`
	ElementID    string                 `json:"element_id,omitempty"`
	Params       map[string]interface{} `json:"params,omitempty"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
	OutputFormat string                 `json:"output_format,omitempty"`
	OutputTitle  string                 `json:"output_title,omitempty"`
}

// Action is a validated decision ready for dispatch. Reasoning is carried
// verbatim from the raw decision for auditability.
type Action struct {
	Kind         ActionKind             `json:"kind"`
	Reasoning    string                 `json:"reasoning,omitempty"`
	ElementID    string                 `json:"element_id,omitempty"`
	Element      *ElementDescriptor     `json:"element,omitempty"`
	Params       map[string]interface{} `json:"params,omitempty"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
	OutputFormat string                 `json:"output_format,omitempty"`
	OutputTitle  string                 `json:"output_title,omitempty"`
}

// Outcome is the uniform result of executing one action. It lives for the
// duration of a single step and is folded into the session log entry.
type Outcome struct {
	Success   bool                   `json:"success"`
	ErrorCode string                 `json:"error_code,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// SuccessOutcome builds a successful Outcome with an optional message.
func SuccessOutcome(message string) *Outcome {
	return &Outcome{Success: true, Message: message}
}

// FailureOutcome builds a failed Outcome carrying a stable error code and text.
func FailureOutcome(code, message string) *Outcome {
	return &Outcome{Success: false, ErrorCode: code, Message: message}
}
