package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadInferenceYAML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.yaml", "addr: :9999\nmodels_dir: /models\ndefault_model: m1.gguf\nmax_history_chars: 2048\nkeep_last_messages: 2\n")
	cfg, err := LoadInference(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9999" || cfg.ModelsDir != "/models" || cfg.DefaultModel != "m1.gguf" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.MaxHistoryChars != 2048 || cfg.KeepLastMessages != 2 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadInferenceJSON(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.json", `{"addr":":7070","models_dir":"/m","summary_max_tokens":128,"cache_size":16}`)
	cfg, err := LoadInference(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":7070" || cfg.SummaryMaxTokens != 128 || cfg.CacheSize != 16 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadGatewayTOML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.toml", "addr=\":8081\"\ninference_url=\"http://inferd:8090\"\ntop_k=5\nredis_addr=\"localhost:6379\"\nallowed_origins=[\"https://app.example.com\"]\n")
	cfg, err := LoadGateway(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8081" || cfg.InferenceURL != "http://inferd:8090" || cfg.TopK != 5 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.RedisAddr != "localhost:6379" || len(cfg.AllowedOrigins) != 1 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := LoadInference(""); err == nil {
		t.Fatalf("expected error on empty path")
	}
	if _, err := LoadGateway("/definitely/not/a/real/file-12345.yaml"); err == nil {
		t.Fatalf("expected error for nonexistent file")
	}
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.txt", "not supported")
	if _, err := LoadInference(p); err == nil {
		t.Fatalf("expected unsupported extension error")
	}
	p = writeTempFile(t, d, "bad.yaml", "addr: :8080\n: broken\n")
	if _, err := LoadGateway(p); err == nil {
		t.Fatalf("expected YAML unmarshal error")
	}
	p = writeTempFile(t, d, "bad.json", `{ "addr": ":8080", "models_dir": }`)
	if _, err := LoadInference(p); err == nil {
		t.Fatalf("expected JSON unmarshal error")
	}
	p = writeTempFile(t, d, "bad.toml", "addr=:8080\nmodels_dir\n")
	if _, err := LoadGateway(p); err == nil {
		t.Fatalf("expected TOML unmarshal error")
	}
}
