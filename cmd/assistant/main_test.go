package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibecoding/vibe-academy/internal/application/chat"
	"github.com/vibecoding/vibe-academy/internal/infrastructure/external/assistant"
	"github.com/vibecoding/vibe-academy/internal/infrastructure/service"
)

type echoAssistant struct{}

func (echoAssistant) Reply(_ context.Context, history []chat.Message) (string, error) {
	return "echo: " + history[len(history)-1].Content, nil
}

func TestRunChat(t *testing.T) {
	session := chat.NewSession(echoAssistant{}, chat.WithGreeting("hello"))
	defer session.Close()

	in := strings.NewReader("first\n\n/reset\nsecond\n/quit\nignored\n")
	var out bytes.Buffer

	require.NoError(t, runChat(context.Background(), session, in, &out))

	got := out.String()
	assert.Contains(t, got, "assistant: hello\n")
	assert.Contains(t, got, "assistant: echo: first\n")
	assert.Contains(t, got, "(conversation cleared)")
	assert.Contains(t, got, "assistant: echo: second\n")
	assert.NotContains(t, got, "ignored")
}

func TestRunChat_ShowsMissingKeyInline(t *testing.T) {
	store, err := assistant.NewCredentialStore(filepath.Join(t.TempDir(), "assistant.key"), "passphrase")
	require.NoError(t, err)

	session := chat.NewSession(service.NewAssistantAdapter(nil, store, ""))
	defer session.Close()

	var out bytes.Buffer
	require.NoError(t, runChat(context.Background(), session, strings.NewReader("hi\n"), &out))

	assert.Contains(t, out.String(), "! "+chat.NoticeNoCredential)
}

func TestRunChat_ReportsInvalidInput(t *testing.T) {
	session := chat.NewSession(echoAssistant{})
	defer session.Close()

	var out bytes.Buffer
	long := strings.Repeat("a", 5000)
	require.NoError(t, runChat(context.Background(), session, strings.NewReader(long+"\n"), &out))

	assert.Contains(t, out.String(), "! ")
	assert.Empty(t, session.Transcript())
}

func TestSetKey(t *testing.T) {
	store, err := assistant.NewCredentialStore(filepath.Join(t.TempDir(), "assistant.key"), "passphrase")
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, setKey(store, strings.NewReader("  sk-test-123 \n"), &out))
	assert.Contains(t, out.String(), "key saved to")

	key, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-test-123", key)

	assert.Error(t, setKey(store, strings.NewReader("\n"), &out))
}
