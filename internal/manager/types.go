package manager

import (
	"context"
	"sync/atomic"
	"time"

	"raggate/pkg/types"
)

// Status represents the lifecycle state of a model slot.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
)

// SwitchOutcome is the synchronous acknowledgement of a switch request.
type SwitchOutcome string

const (
	// OutcomeAlreadyLoaded means the requested model is the current one.
	OutcomeAlreadyLoaded SwitchOutcome = "already_loaded"
	// OutcomeLoadingStarted means a background load was kicked off.
	OutcomeLoadingStarted SwitchOutcome = "loading_started"
	// OutcomeBusy means another load is in flight; the caller must retry.
	OutcomeBusy SwitchOutcome = "busy"
	// OutcomeNotFound means no such model file exists on disk.
	OutcomeNotFound SwitchOutcome = "not_found"
)

// GenRuntime is the opaque capability of a loaded generation model.
type GenRuntime interface {
	// Generate streams tokens for the given messages through onToken.
	// Implementations must return promptly when ctx is canceled or when
	// onToken returns an error.
	Generate(ctx context.Context, messages []types.ChatMessage, onToken func(string) error) error
	// Complete runs a small non-streaming generation, used for history
	// summarization.
	Complete(ctx context.Context, messages []types.ChatMessage, maxTokens int) (string, error)
	Close() error
}

// EmbedRuntime is the opaque capability of a loaded embedding model.
type EmbedRuntime interface {
	// EmbedBatch returns one vector per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Close() error
}

// GenLoader loads a generation runtime from a model file.
type GenLoader func(modelPath string) (GenRuntime, error)

// EmbedLoader loads an embedding runtime from a model file.
type EmbedLoader func(modelPath string) (EmbedRuntime, error)

// genHandle pairs a loaded runtime with a reference count. The manager
// holds one reference; every in-flight stream holds another, so a swap
// cannot tear a runtime out from under a request already using it.
type genHandle struct {
	name string
	rt   GenRuntime
	refs atomic.Int32
}

func newGenHandle(name string, rt GenRuntime) *genHandle {
	h := &genHandle{name: name, rt: rt}
	h.refs.Store(1)
	return h
}

func (h *genHandle) acquire() { h.refs.Add(1) }

func (h *genHandle) release() {
	if h.refs.Add(-1) == 0 {
		_ = h.rt.Close()
	}
}

type embedHandle struct {
	name string
	rt   EmbedRuntime
	refs atomic.Int32
}

func newEmbedHandle(name string, rt EmbedRuntime) *embedHandle {
	h := &embedHandle{name: name, rt: rt}
	h.refs.Store(1)
	return h
}

func (h *embedHandle) acquire() { h.refs.Add(1) }

func (h *embedHandle) release() {
	if h.refs.Add(-1) == 0 {
		_ = h.rt.Close()
	}
}

// slotView is a read-only projection of one slot, used by Snapshot.
type slotView struct {
	status   Status
	current  string
	loading  string
	lastErr  string
	loadedAt time.Time
}

func (v slotView) toStatus() types.SlotStatus {
	s := types.SlotStatus{
		Status:    string(v.status),
		Current:   v.current,
		Loading:   v.loading,
		LastError: v.lastErr,
	}
	if !v.loadedAt.IsZero() {
		s.LoadedAt = v.loadedAt.Unix()
	}
	return s
}
