package service

import (
	"context"

	"github.com/vibecoding/vibe-academy/internal/application/chat"
	"github.com/vibecoding/vibe-academy/internal/infrastructure/external/assistant"
)

// DefaultSystemPrompt frames the assistant as a course tutor.
const DefaultSystemPrompt = "You are the Vibe Academy tutor. Help learners build web apps with AI tools. " +
	"Answer briefly, prefer concrete steps, and point to the relevant course module when one fits."

// KeySource returns the learner's provider key.
type KeySource interface {
	Load() (string, error)
}

// Completer is the provider client.
type Completer interface {
	Complete(ctx context.Context, apiKey string, messages []assistant.MessageDTO) (string, error)
}

// AssistantAdapter adapts the assistant client and the local credential
// store to chat.Assistant.
type AssistantAdapter struct {
	client       Completer
	keys         KeySource
	systemPrompt string
}

var _ chat.Assistant = (*AssistantAdapter)(nil)

// NewAssistantAdapter creates the adapter. An empty systemPrompt uses DefaultSystemPrompt.
func NewAssistantAdapter(client Completer, keys KeySource, systemPrompt string) *AssistantAdapter {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	return &AssistantAdapter{client: client, keys: keys, systemPrompt: systemPrompt}
}

// Reply loads the key on every call so a key saved mid-session is picked up.
func (a *AssistantAdapter) Reply(ctx context.Context, history []chat.Message) (string, error) {
	key, err := a.keys.Load()
	if err != nil {
		return "", err
	}

	messages := make([]assistant.MessageDTO, 0, len(history)+1)
	messages = append(messages, assistant.MessageDTO{Role: assistant.RoleSystem, Content: a.systemPrompt})
	for _, m := range history {
		switch m.Role {
		case chat.RoleUser:
			messages = append(messages, assistant.MessageDTO{Role: assistant.RoleUser, Content: m.Content})
		case chat.RoleAssistant:
			messages = append(messages, assistant.MessageDTO{Role: assistant.RoleAssistant, Content: m.Content})
		}
	}

	return a.client.Complete(ctx, key, messages)
}
