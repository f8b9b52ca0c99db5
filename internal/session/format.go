// ABOUTME: Shared audio format state for a session
// ABOUTME: Publishes immutable format snapshots written by the upstream relay and read by analysis
package session

import (
	"sync"

	"github.com/Resonate-Protocol/beatgate/pkg/audio"
)

// FormatState holds the most recent handshake format. Each Store publishes
// a new snapshot, so readers see either nothing or one complete format.
type FormatState struct {
	mu      sync.RWMutex
	current *audio.Format
}

// Store replaces the format.
func (s *FormatState) Store(format audio.Format) {
	snapshot := format

	s.mu.Lock()
	s.current = &snapshot
	s.mu.Unlock()
}

// Resolve returns the current format or ErrFormatUndefined if no handshake
// has been seen.
func (s *FormatState) Resolve() (audio.Format, error) {
	s.mu.RLock()
	current := s.current
	s.mu.RUnlock()

	if current == nil {
		return audio.Format{}, ErrFormatUndefined
	}
	return *current, nil
}
