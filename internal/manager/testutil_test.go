package manager

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"raggate/pkg/types"
)

func sleepTick() { time.Sleep(5 * time.Millisecond) }

// helper: create a model file in dir and return its path
func createModelFile(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("weights"), 0o644); err != nil {
		t.Fatalf("create model file: %v", err)
	}
	return p
}

// fakeGenRuntime emits a fixed token sequence. An optional gate channel
// pauses generation after each token so tests can interleave switches
// with an in-flight stream.
type fakeGenRuntime struct {
	name       string
	tokens     []string
	genErr     error
	completion string
	complErr   error
	gate       chan struct{}

	mu     sync.Mutex
	closed bool
}

func (f *fakeGenRuntime) Generate(ctx context.Context, messages []types.ChatMessage, onToken func(string) error) error {
	for _, tok := range f.tokens {
		if f.gate != nil {
			select {
			case <-f.gate:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := onToken(tok); err != nil {
			return err
		}
	}
	return f.genErr
}

func (f *fakeGenRuntime) Complete(ctx context.Context, messages []types.ChatMessage, maxTokens int) (string, error) {
	return f.completion, f.complErr
}

func (f *fakeGenRuntime) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeGenRuntime) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeEmbedRuntime maps each text to a deterministic vector.
type fakeEmbedRuntime struct {
	err    error
	closed bool
}

func (f *fakeEmbedRuntime) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text)), float32(i + 1)}
	}
	return out, nil
}

func (f *fakeEmbedRuntime) Close() error {
	f.closed = true
	return nil
}

// genLoaderFor returns runtimes keyed by model filename. An optional
// hold channel blocks every load until it is closed or signaled.
func genLoaderFor(runtimes map[string]*fakeGenRuntime, hold chan struct{}) GenLoader {
	return func(modelPath string) (GenRuntime, error) {
		if hold != nil {
			<-hold
		}
		rt, ok := runtimes[filepath.Base(modelPath)]
		if !ok {
			return nil, os.ErrNotExist
		}
		return rt, nil
	}
}

func newTestManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	cfg.Logger = zerolog.Nop()
	return New(cfg)
}

// waitStatus polls the generation slot until it leaves loading state.
func waitGenSettled(t *testing.T, m *Manager) types.StatusResponse {
	t.Helper()
	for i := 0; i < 200; i++ {
		snap := m.Snapshot()
		if snap.Generation.Status != string(StatusLoading) {
			return snap
		}
		sleepTick()
	}
	t.Fatal("generation slot stuck in loading")
	return types.StatusResponse{}
}

func waitEmbSettled(t *testing.T, m *Manager) types.StatusResponse {
	t.Helper()
	for i := 0; i < 200; i++ {
		snap := m.Snapshot()
		if snap.Embedding.Status != string(StatusLoading) {
			return snap
		}
		sleepTick()
	}
	t.Fatal("embedding slot stuck in loading")
	return types.StatusResponse{}
}
