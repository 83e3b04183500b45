// Package gateway serves end users: it retrieves context, assembles
// prompts, streams answers from the inference daemon, and tracks
// conversation history.
package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"raggate/internal/retrieval"
	"raggate/internal/session"
	"raggate/pkg/types"
)

// Streamer is the inference call the orchestrator depends on. Satisfied
// by infclient.Client.
type Streamer interface {
	ChatStream(ctx context.Context, req types.ChatRequest, onToken func(token string) error) error
}

// Retriever ranks knowledge-base passages for a query. Retrieval is
// best-effort: implementations return nil rather than an error.
type Retriever interface {
	Retrieve(ctx context.Context, query string) []retrieval.Passage
}

// Orchestrator runs one chat turn end to end: session resolution,
// retrieval, prompt assembly, token streaming, history append. It is
// transport-agnostic; the WebSocket and HTTP handlers both drive it.
type Orchestrator struct {
	sessions  session.Store
	retriever Retriever
	inference Streamer
	log       zerolog.Logger

	// turns on the same session must not interleave their appends
	turnMu sync.Mutex
	turns  map[string]*sessionLock
}

// sessionLock serialises turns on one session. waiters counts holders
// plus queued turns so the map entry can be dropped once the last one
// leaves; sessions expire by TTL and their locks must not outlive them.
type sessionLock struct {
	mu      sync.Mutex
	waiters int
}

func NewOrchestrator(sessions session.Store, retriever Retriever, inference Streamer, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		sessions:  sessions,
		retriever: retriever,
		inference: inference,
		log:       log,
		turns:     make(map[string]*sessionLock),
	}
}

func (o *Orchestrator) lockSession(id string) *sessionLock {
	o.turnMu.Lock()
	l, ok := o.turns[id]
	if !ok {
		l = &sessionLock{}
		o.turns[id] = l
	}
	l.waiters++
	o.turnMu.Unlock()
	l.mu.Lock()
	return l
}

func (o *Orchestrator) unlockSession(id string, l *sessionLock) {
	l.mu.Unlock()
	o.turnMu.Lock()
	l.waiters--
	if l.waiters == 0 {
		delete(o.turns, id)
	}
	o.turnMu.Unlock()
}

func (o *Orchestrator) lockCount() int {
	o.turnMu.Lock()
	defer o.turnMu.Unlock()
	return len(o.turns)
}

// NewSession allocates a server-generated session id. Transports that
// announce the id before streaming use this instead of letting Answer
// create one implicitly.
func (o *Orchestrator) NewSession(ctx context.Context) (string, error) {
	return o.sessions.Create(ctx)
}

// Answer runs a single turn. Every generated token is passed to emit in
// model order before Answer returns. The resolved session id is returned
// even on error so transports can label their frames.
func (o *Orchestrator) Answer(ctx context.Context, sessionID, query string, emit func(token string) error) (string, string, error) {
	if strings.TrimSpace(query) == "" {
		return sessionID, "", fmt.Errorf("empty query")
	}
	if sessionID == "" {
		id, err := o.sessions.Create(ctx)
		if err != nil {
			return "", "", fmt.Errorf("create session: %w", err)
		}
		sessionID = id
	}

	l := o.lockSession(sessionID)
	defer o.unlockSession(sessionID, l)

	history, err := o.sessions.History(ctx, sessionID)
	if err != nil && err != session.ErrNotFound {
		return sessionID, "", fmt.Errorf("load history: %w", err)
	}

	passages := o.retriever.Retrieve(ctx, query)
	messages := buildMessages(passages, history, query)

	o.log.Debug().
		Str("session_id", sessionID).
		Int("passages", len(passages)).
		Int("history", len(history)).
		Msg("starting chat turn")

	var answer strings.Builder
	err = o.inference.ChatStream(ctx, types.ChatRequest{Messages: messages, SessionID: sessionID}, func(tok string) error {
		answer.WriteString(tok)
		return emit(tok)
	})
	if err != nil {
		return sessionID, answer.String(), err
	}

	if err := o.sessions.Append(ctx, sessionID,
		types.ChatMessage{Role: types.RoleUser, Content: query},
		types.ChatMessage{Role: types.RoleAssistant, Content: answer.String()},
	); err != nil {
		// the user already has the answer; log instead of failing the turn
		o.log.Error().Err(err).Str("session_id", sessionID).Msg("history append failed")
	}
	return sessionID, answer.String(), nil
}

// buildMessages assembles the prompt: an optional grounding system
// message, prior history, then the current user turn. With no passages
// the raw query goes through unaugmented.
func buildMessages(passages []retrieval.Passage, history []types.ChatMessage, query string) []types.ChatMessage {
	msgs := make([]types.ChatMessage, 0, len(history)+2)
	if len(passages) > 0 {
		msgs = append(msgs, types.ChatMessage{Role: types.RoleSystem, Content: groundingInstruction(passages)})
	}
	msgs = append(msgs, history...)
	msgs = append(msgs, types.ChatMessage{Role: types.RoleUser, Content: query})
	return msgs
}

func groundingInstruction(passages []retrieval.Passage) string {
	var b strings.Builder
	b.WriteString("Answer the user's question using only the reference passages below. ")
	b.WriteString("Do not mention the passages, sources, or any provided context in your answer. ")
	b.WriteString("If the passages do not contain enough information to answer, say that you cannot answer.\n")
	for i, p := range passages {
		fmt.Fprintf(&b, "\nPassage %d (%s):\n%s\n", i+1, p.Source, p.Text)
	}
	return b.String()
}
