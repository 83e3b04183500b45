package manager

import (
	"time"

	"raggate/internal/registry"
	"raggate/pkg/types"
)

// SwitchGeneration requests a switch of the generation slot to name.
// The acknowledgement is synchronous; the load itself runs in the
// background and is observed through Snapshot. First writer wins: a
// request arriving while another load is in flight gets OutcomeBusy with
// no side effects, and is never queued.
//
// Once a switch is accepted the old handle is released immediately; a
// failed load leaves the slot in error state with no model, not the
// previous one. Availability is traded for simplicity here on purpose.
func (m *Manager) SwitchGeneration(name string) (SwitchOutcome, error) {
	mdl, ok, err := registry.Find(m.modelsDir, name)
	if err != nil {
		return OutcomeNotFound, err
	}
	if !ok || mdl.Kind != types.KindGeneration {
		return OutcomeNotFound, ErrModelNotFound(name)
	}

	m.genMu.Lock()
	if m.genStatus == StatusLoading {
		loading := m.genLoading
		m.genMu.Unlock()
		return OutcomeBusy, busyError{loading: loading}
	}
	if m.genStatus == StatusReady && m.gen != nil && m.gen.name == name {
		m.genMu.Unlock()
		return OutcomeAlreadyLoaded, nil
	}
	old := m.gen
	m.gen = nil
	m.genStatus = StatusLoading
	m.genLoading = name
	m.genErr = ""
	m.genMu.Unlock()

	if old != nil {
		old.release()
	}

	go m.loadGeneration(mdl)
	return OutcomeLoadingStarted, nil
}

func (m *Manager) loadGeneration(mdl types.Model) {
	start := time.Now()
	m.log.Info().Str("model", mdl.Name).Msg("generation load start")
	rt, err := m.genLoader(mdl.Path)

	m.genMu.Lock()
	m.genLoading = ""
	if err != nil {
		m.genStatus = StatusError
		m.genErr = err.Error()
		m.genMu.Unlock()
		m.log.Error().Str("model", mdl.Name).Err(err).Msg("generation load failed")
		return
	}
	m.gen = newGenHandle(mdl.Name, rt)
	m.genStatus = StatusReady
	m.genLoadedAt = time.Now()
	m.genMu.Unlock()

	m.loadsTotal.Add(1)
	m.log.Info().Str("model", mdl.Name).Dur("dur", time.Since(start)).Msg("generation load done")
}

// SwitchEmbedding mirrors SwitchGeneration for the embedding slot. The
// slots never block each other.
func (m *Manager) SwitchEmbedding(name string) (SwitchOutcome, error) {
	mdl, ok, err := registry.Find(m.modelsDir, name)
	if err != nil {
		return OutcomeNotFound, err
	}
	if !ok || mdl.Kind != types.KindEmbedding {
		return OutcomeNotFound, ErrModelNotFound(name)
	}

	m.embMu.Lock()
	if m.embStatus == StatusLoading {
		loading := m.embLoading
		m.embMu.Unlock()
		return OutcomeBusy, busyError{loading: loading}
	}
	if m.embStatus == StatusReady && m.emb != nil && m.emb.name == name {
		m.embMu.Unlock()
		return OutcomeAlreadyLoaded, nil
	}
	old := m.emb
	m.emb = nil
	m.embStatus = StatusLoading
	m.embLoading = name
	m.embErr = ""
	m.embMu.Unlock()

	if old != nil {
		old.release()
	}

	go m.loadEmbedding(mdl)
	return OutcomeLoadingStarted, nil
}

func (m *Manager) loadEmbedding(mdl types.Model) {
	start := time.Now()
	m.log.Info().Str("model", mdl.Name).Msg("embedding load start")
	rt, err := m.embedLoader(mdl.Path)

	m.embMu.Lock()
	m.embLoading = ""
	if err != nil {
		m.embStatus = StatusError
		m.embErr = err.Error()
		m.embMu.Unlock()
		m.log.Error().Str("model", mdl.Name).Err(err).Msg("embedding load failed")
		return
	}
	m.emb = newEmbedHandle(mdl.Name, rt)
	m.embStatus = StatusReady
	m.embLoadedAt = time.Now()
	m.embMu.Unlock()

	m.loadsTotal.Add(1)
	m.log.Info().Str("model", mdl.Name).Dur("dur", time.Since(start)).Msg("embedding load done")
}

// Switch dispatches to the slot matching kind.
func (m *Manager) Switch(name string, kind types.ModelKind) (SwitchOutcome, error) {
	if kind == types.KindEmbedding {
		return m.SwitchEmbedding(name)
	}
	return m.SwitchGeneration(name)
}
