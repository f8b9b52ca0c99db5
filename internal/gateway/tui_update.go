// ABOUTME: TUI update helpers for the gateway
// ABOUTME: Collects session stats and pushes them to the TUI
package gateway

import (
	"sort"
	"time"
)

// updateTUI sends current gateway state to the TUI
func (s *Server) updateTUI() {
	if s.tui == nil {
		return
	}

	s.tui.Update(ServerStatus{
		Name:     s.config.Server.Name,
		Listen:   s.config.Server.ListenAddr,
		Upstream: s.config.Upstream.URL,
		Sessions: s.sessionInfos(),
	})
}

// sessionInfos snapshots live sessions, oldest first
func (s *Server) sessionInfos() []SessionInfo {
	s.sessionsMu.RLock()
	infos := make([]SessionInfo, 0, len(s.sessions))
	for _, sess := range s.sessions {
		st := sess.Stats()
		infos = append(infos, SessionInfo{
			ID:      st.ID,
			Remote:  st.Remote,
			Format:  st.Format,
			Windows: st.Windows,
			LastBPM: st.LastBPM,
			Age:     time.Since(st.Started),
		})
	}
	s.sessionsMu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Age > infos[j].Age
	})
	return infos
}

// refreshTUI pushes stats every second until the gateway stops
func (s *Server) refreshTUI() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.updateTUI()
		}
	}
}
