package autotrigger

import "sync"

// Settings holds per-phase autonomy switches with a process-wide default.
type Settings struct {
	mu      sync.Mutex
	def     bool
	byPhase map[string]bool
}

func NewSettings(def bool) *Settings {
	return &Settings{def: def, byPhase: make(map[string]bool)}
}

// SetPhase overrides the default for one phase block.
func (s *Settings) SetPhase(phaseID string, enabled bool) {
	s.mu.Lock()
	s.byPhase[phaseID] = enabled
	s.mu.Unlock()
}

// ClearPhase drops the override so the phase follows the default again.
func (s *Settings) ClearPhase(phaseID string) {
	s.mu.Lock()
	delete(s.byPhase, phaseID)
	s.mu.Unlock()
}

// PhaseEnabled reports whether the chain may start generations under the
// given phase. An empty phase id (block outside any phase) follows the
// default.
func (s *Settings) PhaseEnabled(phaseID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.byPhase[phaseID]; ok {
		return v
	}
	return s.def
}
