package assistant

// ══════════════════════════════════════════════════════════════════════════════
// DATA TRANSFER OBJECTS (chat-completions wire format)
// ══════════════════════════════════════════════════════════════════════════════

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// MessageDTO is one conversation turn.
type MessageDTO struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequestDTO is the completion request body.
type ChatRequestDTO struct {
	Model       string       `json:"model"`
	Messages    []MessageDTO `json:"messages"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Temperature float64      `json:"temperature,omitempty"`
}

// ChoiceDTO is one completion candidate.
type ChoiceDTO struct {
	Index        int        `json:"index"`
	Message      MessageDTO `json:"message"`
	FinishReason string     `json:"finish_reason"`
}

// ChatResponseDTO is the completion response body.
type ChatResponseDTO struct {
	ID      string       `json:"id"`
	Choices []ChoiceDTO  `json:"choices"`
	Error   *APIErrorDTO `json:"error,omitempty"`
}

// APIErrorDTO is the provider's error object.
type APIErrorDTO struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// ErrorEnvelopeDTO wraps APIErrorDTO in non-2xx responses.
type ErrorEnvelopeDTO struct {
	Error APIErrorDTO `json:"error"`
}
