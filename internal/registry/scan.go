package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"raggate/internal/common/fsutil"
	"raggate/pkg/types"
)

// Classify decides whether a model filename is an embedding model or a
// generation model. Names containing "embed" (case-insensitive) are
// embedding models; everything else generates.
func Classify(name string) types.ModelKind {
	if strings.Contains(strings.ToLower(name), "embed") {
		return types.KindEmbedding
	}
	return types.KindGeneration
}

// isModelFile reports whether the filename looks like a loadable model.
func isModelFile(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".gguf") || strings.HasSuffix(lower, ".safetensors")
}

// ScanDir lists model files in dir and classifies them by filename.
// The result reflects the directory at call time; callers must not cache
// it across uploads or deletes.
func ScanDir(dir string) ([]types.Model, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.Model
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !isModelFile(name) {
			continue
		}
		models = append(models, types.Model{
			Name: name,
			Path: filepath.Join(abs, name),
			Kind: Classify(name),
		})
	}
	return models, nil
}

// Find returns the descriptor for name within dir, scanning on demand.
func Find(dir, name string) (types.Model, bool, error) {
	models, err := ScanDir(dir)
	if err != nil {
		return types.Model{}, false, err
	}
	for _, m := range models {
		if m.Name == name {
			return m, true, nil
		}
	}
	return types.Model{}, false, nil
}

// Names filters models by kind and returns the filenames.
func Names(models []types.Model, kind types.ModelKind) []string {
	out := make([]string, 0, len(models))
	for _, m := range models {
		if m.Kind == kind {
			out = append(out, m.Name)
		}
	}
	return out
}
