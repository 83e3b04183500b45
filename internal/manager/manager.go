package manager

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultMaxHistoryChars  = 4096
	defaultKeepLastMessages = 4
	defaultSummaryMaxTokens = 256
	defaultCacheSize        = 128
)

// Config encapsulates all tunables for Manager construction.
type Config struct {
	// ModelsDir is scanned on demand for model files.
	ModelsDir string
	// MaxHistoryChars bounds the summed content length of a conversation
	// before compression kicks in.
	MaxHistoryChars int
	// KeepLastMessages is the number of trailing messages kept verbatim
	// during compression.
	KeepLastMessages int
	// SummaryMaxTokens caps the summarization completion.
	SummaryMaxTokens int
	// CacheSize bounds the streamed-response cache (entries).
	CacheSize int
	// Loaders produce runtimes from model files. Nil selects the
	// build-tag defaults (real llama.cpp under the 'llama' tag, a
	// fail-fast stub otherwise).
	GenLoader   GenLoader
	EmbedLoader EmbedLoader
	Logger      zerolog.Logger
}

// Manager owns at most one loaded generation model and one loaded
// embedding model. The two slots have independent mutex domains so a
// long generation load never blocks embedding switches, and vice versa.
type Manager struct {
	modelsDir string

	genMu       sync.RWMutex
	genStatus   Status
	genLoading  string
	genErr      string
	genLoadedAt time.Time
	gen         *genHandle

	embMu       sync.RWMutex
	embStatus   Status
	embLoading  string
	embErr      string
	embLoadedAt time.Time
	emb         *embedHandle

	maxHistoryChars  int
	keepLastMessages int
	summaryMaxTokens int

	cache *responseCache

	loadsTotal atomic.Uint64
	chatsTotal atomic.Uint64
	startTime  time.Time

	genLoader   GenLoader
	embedLoader EmbedLoader
	log         zerolog.Logger
}

// New constructs a Manager from Config, applying defaults for unset fields.
func New(cfg Config) *Manager {
	m := &Manager{
		modelsDir:        cfg.ModelsDir,
		genStatus:        StatusIdle,
		embStatus:        StatusIdle,
		maxHistoryChars:  cfg.MaxHistoryChars,
		keepLastMessages: cfg.KeepLastMessages,
		summaryMaxTokens: cfg.SummaryMaxTokens,
		genLoader:        cfg.GenLoader,
		embedLoader:      cfg.EmbedLoader,
		log:              cfg.Logger,
		startTime:        time.Now(),
	}
	if m.maxHistoryChars <= 0 {
		m.maxHistoryChars = defaultMaxHistoryChars
	}
	if m.keepLastMessages <= 0 {
		m.keepLastMessages = defaultKeepLastMessages
	}
	if m.summaryMaxTokens <= 0 {
		m.summaryMaxTokens = defaultSummaryMaxTokens
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	m.cache = newResponseCache(size)
	if m.genLoader == nil {
		m.genLoader = defaultGenLoader
	}
	if m.embedLoader == nil {
		m.embedLoader = defaultEmbedLoader
	}
	m.log.Debug().Bool("llama_built", llamaBuilt).Str("models_dir", m.modelsDir).Msg("manager initialized")
	return m
}

// ModelsDir returns the directory scanned for model files.
func (m *Manager) ModelsDir() string { return m.modelsDir }

// Ready reports whether a generation model is loaded and serving.
func (m *Manager) Ready() bool {
	m.genMu.RLock()
	defer m.genMu.RUnlock()
	return m.genStatus == StatusReady && m.gen != nil
}

// acquireGeneration captures the current generation handle for the full
// duration of a stream. The readiness check and the handle capture happen
// under one lock so a concurrent switch cannot change which model serves
// the request after admission.
func (m *Manager) acquireGeneration() (*genHandle, error) {
	m.genMu.RLock()
	defer m.genMu.RUnlock()
	if m.genStatus != StatusReady || m.gen == nil {
		return nil, ErrNotReady("generation model")
	}
	h := m.gen
	h.acquire()
	return h, nil
}

func (m *Manager) acquireEmbedding() (*embedHandle, error) {
	m.embMu.RLock()
	defer m.embMu.RUnlock()
	if m.embStatus != StatusReady || m.emb == nil {
		return nil, ErrNotReady("embedding model")
	}
	h := m.emb
	h.acquire()
	return h, nil
}

// Close releases both handles. Called on process shutdown.
func (m *Manager) Close() {
	m.genMu.Lock()
	if m.gen != nil {
		m.gen.release()
		m.gen = nil
		m.genStatus = StatusIdle
	}
	m.genMu.Unlock()

	m.embMu.Lock()
	if m.emb != nil {
		m.emb.release()
		m.emb = nil
		m.embStatus = StatusIdle
	}
	m.embMu.Unlock()
}
