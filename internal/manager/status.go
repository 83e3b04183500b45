package manager

import (
	"time"

	"raggate/pkg/types"
)

// Snapshot returns a consistent, non-blocking view of both slots. Safe to
// call from any goroutine regardless of loads in flight.
func (m *Manager) Snapshot() types.StatusResponse {
	m.genMu.RLock()
	gen := slotView{
		status:   m.genStatus,
		loading:  m.genLoading,
		lastErr:  m.genErr,
		loadedAt: m.genLoadedAt,
	}
	if m.gen != nil {
		gen.current = m.gen.name
	}
	m.genMu.RUnlock()

	m.embMu.RLock()
	emb := slotView{
		status:   m.embStatus,
		loading:  m.embLoading,
		lastErr:  m.embErr,
		loadedAt: m.embLoadedAt,
	}
	if m.emb != nil {
		emb.current = m.emb.name
	}
	m.embMu.RUnlock()

	return types.StatusResponse{
		Generation:     gen.toStatus(),
		Embedding:      emb.toStatus(),
		Device:         Device(),
		UptimeSeconds:  int64(time.Since(m.startTime) / time.Second),
		ServerTimeUnix: time.Now().Unix(),
		LoadsTotal:     m.loadsTotal.Load(),
		ChatsTotal:     m.chatsTotal.Load(),
	}
}

// CurrentModels returns the loaded model names for both slots.
func (m *Manager) CurrentModels() (generation, embedding string) {
	m.genMu.RLock()
	if m.gen != nil {
		generation = m.gen.name
	}
	m.genMu.RUnlock()
	m.embMu.RLock()
	if m.emb != nil {
		embedding = m.emb.name
	}
	m.embMu.RUnlock()
	return generation, embedding
}
