//go:build llama

package manager

import (
	"context"
	"errors"
	"strings"

	llama "github.com/go-skynet/go-llama.cpp"

	"raggate/pkg/types"
)

// Real llama.cpp runtimes, compiled only with the 'llama' build tag so
// default builds and CI stay CGO-free.

var llamaBuilt = true

const (
	llamaCtxSize   = 8192
	llamaGenTokens = 512
)

type llamaGenRuntime struct {
	model *llama.LLama
}

func defaultGenLoader(modelPath string) (GenRuntime, error) {
	if strings.TrimSpace(modelPath) == "" {
		return nil, errors.New("model path is empty")
	}
	m, err := llama.New(modelPath, llama.SetContext(llamaCtxSize))
	if err != nil {
		return nil, err
	}
	return &llamaGenRuntime{model: m}, nil
}

func (r *llamaGenRuntime) Generate(ctx context.Context, messages []types.ChatMessage, onToken func(string) error) error {
	r.model.SetTokenCallback(func(tok string) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		return onToken(tok) == nil
	})
	defer r.model.SetTokenCallback(nil)

	_, err := r.model.Predict(BuildPrompt(messages), llama.SetTokens(llamaGenTokens))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (r *llamaGenRuntime) Complete(ctx context.Context, messages []types.ChatMessage, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = llamaGenTokens
	}
	text, err := r.model.Predict(BuildPrompt(messages), llama.SetTokens(maxTokens), llama.SetTemperature(0.2))
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", err
	}
	return text, nil
}

func (r *llamaGenRuntime) Close() error {
	if r.model != nil {
		r.model.Free()
		r.model = nil
	}
	return nil
}

type llamaEmbedRuntime struct {
	model *llama.LLama
}

func defaultEmbedLoader(modelPath string) (EmbedRuntime, error) {
	if strings.TrimSpace(modelPath) == "" {
		return nil, errors.New("model path is empty")
	}
	m, err := llama.New(modelPath, llama.SetContext(llamaCtxSize), llama.EnableEmbeddings)
	if err != nil {
		return nil, err
	}
	return &llamaEmbedRuntime{model: m}, nil
}

func (r *llamaEmbedRuntime) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec, err := r.model.Embeddings(text)
		if err != nil {
			return nil, err
		}
		out = append(out, vec)
	}
	return out, nil
}

func (r *llamaEmbedRuntime) Close() error {
	if r.model != nil {
		r.model.Free()
		r.model = nil
	}
	return nil
}
