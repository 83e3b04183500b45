//go:build !llama

package manager

// Default-build loaders fail fast instead of mocking inference. Build
// with -tags=llama to wire the real llama.cpp runtimes; tests inject
// fakes through Config.

var llamaBuilt = false

func defaultGenLoader(modelPath string) (GenRuntime, error) {
	return nil, ErrDependencyUnavailable("llama support not built (missing 'llama' build tag)")
}

func defaultEmbedLoader(modelPath string) (EmbedRuntime, error) {
	return nil, ErrDependencyUnavailable("llama support not built (missing 'llama' build tag)")
}
