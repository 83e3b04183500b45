package manager

import (
	"context"
	"fmt"
	"strings"

	"raggate/pkg/types"
)

// ChatStream runs one streaming chat turn. The generation handle is
// captured once before any work starts and held for the full stream, so
// a switch completing mid-turn never mixes output from two models.
// Tokens are delivered through onToken in model order; returning an
// error from onToken cancels generation.
func (m *Manager) ChatStream(ctx context.Context, messages []types.ChatMessage, onToken func(string) error) error {
	h, err := m.acquireGeneration()
	if err != nil {
		return err
	}
	defer h.release()

	msgs, err := m.compressHistory(ctx, h, messages)
	if err != nil {
		return fmt.Errorf("compress history: %w", err)
	}

	key := cacheKey(msgs)
	if full, ok := m.cache.get(key); ok {
		m.chatsTotal.Add(1)
		return onToken(full)
	}

	var full strings.Builder
	err = h.rt.Generate(ctx, msgs, func(tok string) error {
		full.WriteString(tok)
		return onToken(tok)
	})
	if err != nil {
		return err
	}
	// an empty answer is reported as a failure upstream; caching it
	// would replay the failure as a successful token
	if full.Len() > 0 {
		m.cache.put(key, full.String())
	}
	m.chatsTotal.Add(1)
	return nil
}

// compressHistory bounds context growth across long conversations. When
// the summed content length exceeds the configured maximum, everything
// but the last keepLastMessages turns is condensed into one synthetic
// system message via a dedicated non-streaming completion on the same
// captured handle. A failed summarization fails the whole turn; history
// is never silently truncated.
func (m *Manager) compressHistory(ctx context.Context, h *genHandle, messages []types.ChatMessage) ([]types.ChatMessage, error) {
	total := 0
	for _, msg := range messages {
		total += len(msg.Content)
	}
	if total <= m.maxHistoryChars || len(messages) <= m.keepLastMessages {
		return messages, nil
	}

	head := messages[:len(messages)-m.keepLastMessages]
	var prompt strings.Builder
	prompt.WriteString("Condense the following conversation into a single short paragraph that preserves the facts needed to understand what comes after it:\n")
	for _, msg := range head {
		prompt.WriteString(string(msg.Role))
		prompt.WriteString(": ")
		prompt.WriteString(msg.Content)
		prompt.WriteByte('\n')
	}

	summary, err := h.rt.Complete(ctx, []types.ChatMessage{{Role: types.RoleUser, Content: prompt.String()}}, m.summaryMaxTokens)
	if err != nil {
		return nil, err
	}

	out := make([]types.ChatMessage, 0, m.keepLastMessages+1)
	out = append(out, types.ChatMessage{
		Role:    types.RoleSystem,
		Content: "Summary of the earlier conversation: " + summary,
	})
	out = append(out, messages[len(messages)-m.keepLastMessages:]...)
	m.log.Info().Int("before", len(messages)).Int("after", len(out)).Msg("history compressed")
	return out, nil
}

// BuildPrompt flattens a message sequence into a plain transcript prompt
// for runtimes without a native chat interface.
func BuildPrompt(messages []types.ChatMessage) string {
	var b strings.Builder
	for _, msg := range messages {
		b.WriteString(string(msg.Role))
		b.WriteString(": ")
		b.WriteString(msg.Content)
		b.WriteString("\n")
	}
	b.WriteString("assistant: ")
	return b.String()
}
