package callclient

type outboundMessage struct {
	Type        string              `json:"type"`
	AssistantID string              `json:"assistantId,omitempty"`
	Overrides   *assistantOverrides `json:"assistantOverrides,omitempty"`
	Muted       *bool               `json:"muted,omitempty"`
	Message     *wireTurn           `json:"message,omitempty"`
}

type assistantOverrides struct {
	FirstMessage string `json:"firstMessage,omitempty"`
	SystemPrompt string `json:"systemPrompt,omitempty"`
}

type wireTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type inboundMessage struct {
	Type    string    `json:"type"`
	Volume  float64   `json:"volume"`
	Message *wireTurn `json:"message"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (m inboundMessage) errorText() string {
	if m.Error == nil || m.Error.Message == "" {
		return "unknown error"
	}
	return m.Error.Message
}
